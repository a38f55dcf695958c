package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"sgl-admin/internal/docstore"
	"sgl-admin/internal/model"

	"github.com/rs/zerolog"
)

// ledgerRepository implements LedgerRepository on a docstore.Store.
type ledgerRepository struct {
	store   docstore.Store
	counter Counter
	logger  zerolog.Logger
}

// NewLedgerRepository creates a ledger repository. A nil counter selects the
// counter document stored in the codes collection.
func NewLedgerRepository(store docstore.Store, counter Counter, logger zerolog.Logger) LedgerRepository {
	if counter == nil {
		counter = NewDocumentCounter()
	}
	return &ledgerRepository{
		store:   store,
		counter: counter,
		logger:  logger.With().Str("repository", "ledger").Logger(),
	}
}

// RunInTx runs fn inside a document store transaction.
func (r *ledgerRepository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error, opts ...docstore.TxOption) error {
	return r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return fn(ctx, &ledgerTx{tx: tx, counter: r.counter})
	}, opts...)
}

// GetPromo returns the promo code stored under code, or nil if there is none.
func (r *ledgerRepository) GetPromo(ctx context.Context, code string) (*model.PromoCode, error) {
	doc, err := r.store.Get(ctx, CodesCollection, code)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			r.logger.Debug().Str("code", code).Msg("promo code not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Str("code", code).Msg("failed to get promo code")
		return nil, fmt.Errorf("failed to get promo code: %w", err)
	}
	if Classify(*doc) != KindPromo {
		return nil, nil
	}
	return decodePromo(*doc), nil
}

// ListPromos returns every promo-shaped document in the codes collection.
func (r *ledgerRepository) ListPromos(ctx context.Context) ([]model.PromoCode, error) {
	docs, err := r.store.List(ctx, CodesCollection)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list codes collection")
		return nil, fmt.Errorf("failed to list promo codes: %w", err)
	}
	return promosOf(docs), nil
}

// GetBucket returns the redeem code bucket for cardID, or nil if there is none.
func (r *ledgerRepository) GetBucket(ctx context.Context, cardID string) (*model.RedeemCode, error) {
	doc, err := r.store.Get(ctx, CodesCollection, cardID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("card_id", cardID).Msg("failed to get redeem code bucket")
		return nil, fmt.Errorf("failed to get redeem code bucket: %w", err)
	}
	if Classify(*doc) != KindRedeemBucket {
		return nil, nil
	}
	return decodeBucket(*doc), nil
}

// WatchPromos calls fn with the current promo codes after every change.
func (r *ledgerRepository) WatchPromos(ctx context.Context, fn func([]model.PromoCode)) (func(), error) {
	stop, err := r.store.Watch(ctx, CodesCollection, func(docs []docstore.Document) {
		fn(promosOf(docs))
	})
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to watch codes collection")
		return nil, fmt.Errorf("failed to watch promo codes: %w", err)
	}
	return stop, nil
}

func promosOf(docs []docstore.Document) []model.PromoCode {
	promos := []model.PromoCode{}
	for _, doc := range docs {
		if Classify(doc) == KindPromo {
			promos = append(promos, *decodePromo(doc))
		}
	}
	sort.Slice(promos, func(i, j int) bool { return promos[i].Code < promos[j].Code })
	return promos
}

// ledgerTx adapts a docstore.Tx to LedgerTx.
type ledgerTx struct {
	tx      docstore.Tx
	counter Counter
}

func (t *ledgerTx) get(collection, id string) (*docstore.Document, error) {
	doc, err := t.tx.Get(collection, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (t *ledgerTx) LastSequence() (int, error) {
	return t.counter.Last(t.tx)
}

func (t *ledgerTx) DocumentExists(id string) (bool, error) {
	doc, err := t.get(CodesCollection, id)
	return doc != nil, err
}

func (t *ledgerTx) GetPromo(code string) (*model.PromoCode, error) {
	doc, err := t.get(CodesCollection, code)
	if err != nil || doc == nil {
		return nil, err
	}
	if Classify(*doc) != KindPromo {
		return nil, nil
	}
	return decodePromo(*doc), nil
}

func (t *ledgerTx) GetBucket(cardID string) (*model.RedeemCode, error) {
	doc, err := t.get(CodesCollection, cardID)
	if err != nil || doc == nil {
		return nil, err
	}
	if Classify(*doc) != KindRedeemBucket {
		return nil, fmt.Errorf("%s/%s: %w", CodesCollection, cardID, ErrNotBucket)
	}
	return decodeBucket(*doc), nil
}

func (t *ledgerTx) CardExists(cardID string) (bool, error) {
	doc, err := t.get(CardsCollection, cardID)
	return doc != nil, err
}

func (t *ledgerTx) SetLastSequence(n int) error {
	return t.counter.Set(t.tx, n)
}

func (t *ledgerTx) CreateBucket(bucket *model.RedeemCode) error {
	return t.tx.Set(CodesCollection, bucket.CardID, map[string]any{
		fieldType:      string(model.DocumentTypeRedeem),
		fieldCardID:    bucket.CardID,
		fieldCodes:     docstore.ArrayUnion(toAnySlice(bucket.Codes)...),
		fieldCreatedAt: bucket.CreatedAt,
	})
}

func (t *ledgerTx) MergeBucketCodes(cardID string, codes []string) error {
	return t.tx.Update(CodesCollection, cardID, []docstore.Update{
		{Path: fieldCodes, Value: docstore.ArrayUnion(toAnySlice(codes)...)},
	})
}

func (t *ledgerTx) CreatePromo(promo *model.PromoCode) error {
	return t.tx.Set(CodesCollection, promo.Code, map[string]any{
		fieldType:      string(model.DocumentTypePromo),
		fieldCardID:    promo.CardID,
		fieldCodes:     []string{promo.Code},
		fieldCreatedAt: promo.CreatedAt,
		fieldMaxUsers:  promo.MaxUsers,
		fieldUsedBy:    toAnySlice(promo.UsedBy),
	})
}

func (t *ledgerTx) RecordRedemption(promo *model.PromoCode, userID string) error {
	redeemers := append(toAnySlice(promo.UsedBy), userID)
	return t.tx.Update(CodesCollection, promo.Code, []docstore.Update{
		{Path: fieldType, Value: string(model.DocumentTypePromo)},
		{Path: fieldMaxUsers, Value: promo.MaxUsers},
		{Path: fieldUsedBy, Value: docstore.ArrayUnion(redeemers...)},
		{Path: legacyMaxUsage, Value: docstore.Delete},
		{Path: legacyUsedBy, Value: docstore.Delete},
	})
}

func (t *ledgerTx) DeletePromo(code string) error {
	return t.tx.Delete(CodesCollection, code)
}

func (t *ledgerTx) AddCardPromoCode(cardID, code string) error {
	return t.tx.Set(CardsCollection, cardID, map[string]any{
		fieldPromoCodes: docstore.ArrayUnion(code),
	}, docstore.Merge())
}

func (t *ledgerTx) RemoveCardPromoCode(cardID, code string) error {
	return t.tx.Update(CardsCollection, cardID, []docstore.Update{
		{Path: fieldPromoCodes, Value: docstore.ArrayRemove(code)},
	})
}
