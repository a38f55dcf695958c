package service

import (
	"context"

	"sgl-admin/internal/model"
)

// LedgerService defines operations on redeem code buckets and promo codes.
type LedgerService interface {
	// AddCodes merges raw one-time codes into the bucket of a card.
	AddCodes(ctx context.Context, cardID string, codes []string) error

	// ImportCodes loads a code list from source and merges it into the bucket of a card.
	// It returns the number of distinct codes submitted.
	ImportCodes(ctx context.Context, cardID, source string) (int, error)

	// CreatePromoCode allocates or validates a promo code name and registers it against a card.
	CreatePromoCode(ctx context.Context, req *model.CreatePromoCodeRequest) (*model.PromoCodeResponse, error)

	// RedeemPromoCode consumes one use of a promo code for userID.
	RedeemPromoCode(ctx context.Context, code, userID string) (*model.RedeemResult, error)

	// DeletePromoCode removes a promo code and its card back-reference.
	DeletePromoCode(ctx context.Context, code string) error

	// GetPromoCode retrieves a single promo code.
	GetPromoCode(ctx context.Context, code string) (*model.PromoView, error)

	// ListPromoCodes retrieves all promo codes ordered by name.
	ListPromoCodes(ctx context.Context) ([]model.PromoView, error)

	// SubscribePromoCodes calls onUpdate with the full promo listing now and
	// after every change until the returned func is called or ctx ends.
	SubscribePromoCodes(ctx context.Context, onUpdate func([]model.PromoView)) (func(), error)
}
