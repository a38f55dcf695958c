package model

import "time"

// DocumentType is the discriminant written on every ledger document.
type DocumentType string

const (
	DocumentTypeRedeem DocumentType = "redeem"
	DocumentTypePromo  DocumentType = "promo"
)

// RedeemCode is a per-card bucket of one-time raw codes.
type RedeemCode struct {
	CardID    string    `json:"cardId"`
	Codes     []string  `json:"codes"`
	CreatedAt time.Time `json:"createdAt"`
}

// PromoCode is a named, capacity-limited code scoped to one card.
type PromoCode struct {
	Code      string    `json:"code"`
	CardID    string    `json:"cardId"`
	MaxUsers  int       `json:"maxUsers"`
	UsedBy    []string  `json:"usedBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// RemainingUses returns MaxUsers minus the number of redeemers, never below zero.
func (p *PromoCode) RemainingUses() int {
	remaining := p.MaxUsers - len(p.UsedBy)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// HasRedeemed reports whether userID already redeemed p.
func (p *PromoCode) HasRedeemed(userID string) bool {
	for _, id := range p.UsedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// PromoView is the listing representation of a promo code.
type PromoView struct {
	Code          string     `json:"code"`
	CardID        string     `json:"card_id"`
	MaxUsage      int        `json:"max_usage"`
	RemainingUses int        `json:"remaining_uses"`
	UsedBy        []string   `json:"used_by"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
}

// NewPromoView builds the listing representation of p.
func NewPromoView(p *PromoCode) PromoView {
	view := PromoView{
		Code:          p.Code,
		CardID:        p.CardID,
		MaxUsage:      p.MaxUsers,
		RemainingUses: p.RemainingUses(),
		UsedBy:        append([]string{}, p.UsedBy...),
	}
	if !p.CreatedAt.IsZero() {
		createdAt := p.CreatedAt
		view.CreatedAt = &createdAt
	}
	return view
}

// AddCodesRequest represents the request payload for adding bulk codes.
type AddCodesRequest struct {
	CardID string   `json:"cardId"`
	Codes  []string `json:"codes"`
}

// ImportCodesRequest represents the request payload for importing bulk codes from a file or S3 object.
type ImportCodesRequest struct {
	CardID string `json:"cardId"`
	Source string `json:"source"`
}

// ImportCodesResponse represents the response payload for a bulk import.
type ImportCodesResponse struct {
	CardID   string `json:"cardId"`
	Imported int    `json:"imported"`
}

// CreatePromoCodeRequest represents the request payload for creating a promo code.
type CreatePromoCodeRequest struct {
	CardID     string  `json:"cardId"`
	MaxUsage   int     `json:"maxUsage"`
	CustomCode *string `json:"customCode,omitempty"`
}

// PromoCodeResponse represents the response payload for a created promo code.
type PromoCodeResponse struct {
	Code          string    `json:"code"`
	CardID        string    `json:"card_id"`
	MaxUsage      int       `json:"max_usage"`
	RemainingUses int       `json:"remaining_uses"`
	CreatedAt     time.Time `json:"created_at"`
	UsedBy        []string  `json:"used_by"`
}

// RedeemRequest represents the request payload for redeeming a promo code.
type RedeemRequest struct {
	UserID string `json:"userId"`
}

// RedeemResult represents the post-redemption state of a promo code.
type RedeemResult struct {
	Code          string   `json:"code"`
	RemainingUses int      `json:"remaining_uses"`
	UsedBy        []string `json:"used_by"`
}
