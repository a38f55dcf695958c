package repository

import (
	"context"
	"errors"

	"sgl-admin/internal/docstore"
	"sgl-admin/internal/model"
)

// Collection and document names shared with the dashboard.
const (
	// CodesCollection holds redeem code buckets, promo codes and the sequence counter.
	CodesCollection = "redeemCodes"

	// CardsCollection holds card catalog records.
	CardsCollection = "cards"

	// SequenceDocID is the reserved id of the promo sequence counter document.
	SequenceDocID = "_promo_sequence"
)

// ErrNotBucket is returned by LedgerTx.GetBucket when the document stored
// under the card id is not a redeem code bucket.
var ErrNotBucket = errors.New("document is not a redeem code bucket")

// LedgerRepository defines data access for redeem code buckets and promo codes.
type LedgerRepository interface {
	// RunInTx runs fn inside a document store transaction. fn may run more
	// than once; all reads must be issued before the first write.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error, opts ...docstore.TxOption) error

	// GetPromo returns the promo code stored under code, or nil if there is none.
	GetPromo(ctx context.Context, code string) (*model.PromoCode, error)

	// ListPromos returns every promo-shaped document in the codes collection.
	ListPromos(ctx context.Context) ([]model.PromoCode, error)

	// GetBucket returns the redeem code bucket for cardID, or nil if there is none.
	GetBucket(ctx context.Context, cardID string) (*model.RedeemCode, error)

	// WatchPromos calls fn with the current promo codes after every change.
	WatchPromos(ctx context.Context, fn func([]model.PromoCode)) (func(), error)
}

// LedgerTx is the transactional view used by the ledger service. Reads
// return nil, nil for absent documents.
type LedgerTx interface {
	// LastSequence reads the last allocated promo sequence number.
	LastSequence() (int, error)

	// DocumentExists reports whether any document is stored under id in the codes collection.
	DocumentExists(id string) (bool, error)

	// GetPromo reads a promo code. Documents that are not promo-shaped read as nil.
	GetPromo(code string) (*model.PromoCode, error)

	// GetBucket reads the redeem code bucket for cardID.
	GetBucket(cardID string) (*model.RedeemCode, error)

	// CardExists reports whether a card record exists.
	CardExists(cardID string) (bool, error)

	// SetLastSequence stages the new value of the promo sequence counter.
	SetLastSequence(n int) error

	// CreateBucket stages a new redeem code bucket.
	CreateBucket(bucket *model.RedeemCode) error

	// MergeBucketCodes stages a set-union of codes into an existing bucket.
	MergeBucketCodes(cardID string, codes []string) error

	// CreatePromo stages a new promo code document.
	CreatePromo(promo *model.PromoCode) error

	// RecordRedemption stages userID's redemption of promo, rewriting legacy
	// field spellings to the canonical ones.
	RecordRedemption(promo *model.PromoCode, userID string) error

	// DeletePromo stages deletion of a promo code document.
	DeletePromo(code string) error

	// AddCardPromoCode stages a set-union of code into the card's promoCodes,
	// creating a stub card record if none exists.
	AddCardPromoCode(cardID, code string) error

	// RemoveCardPromoCode stages removal of code from the card's promoCodes.
	RemoveCardPromoCode(cardID, code string) error
}

// Counter reads and advances the promo name sequence inside a transaction.
type Counter interface {
	Last(tx docstore.Tx) (int, error)
	Set(tx docstore.Tx, n int) error
}
