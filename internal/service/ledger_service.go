package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sgl-admin/internal/auth"
	"sgl-admin/internal/coupon"
	"sgl-admin/internal/docstore"
	"sgl-admin/internal/model"
	"sgl-admin/internal/repository"

	"github.com/rs/zerolog"
)

// ledgerService implements LedgerService.
type ledgerService struct {
	repo             repository.LedgerRepository
	loader           coupon.Loader
	logger           zerolog.Logger
	now              func() time.Time
	maxCodes         int
	sequenceAttempts int
}

// Defaults for the request limits of the ledger service.
const (
	DefaultMaxCodes         = 100000
	DefaultSequenceAttempts = 20
)

// Option configures the ledger service.
type Option func(*ledgerService)

// WithClock overrides the clock used for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *ledgerService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMaxCodes caps the number of distinct codes a single AddCodes or
// ImportCodes request may carry. n < 1 keeps the default.
func WithMaxCodes(n int) Option {
	return func(s *ledgerService) {
		if n > 0 {
			s.maxCodes = n
		}
	}
}

// WithSequenceAttempts sets how many times an auto-named CreatePromoCode
// transaction is attempted. Concurrent creators all contend on the sequence
// counter, so this is usually higher than the store default.
func WithSequenceAttempts(n int) Option {
	return func(s *ledgerService) {
		if n > 0 {
			s.sequenceAttempts = n
		}
	}
}

// NewLedgerService creates a new ledger service. loader may be nil, in which
// case ImportCodes always fails.
func NewLedgerService(
	repo repository.LedgerRepository,
	loader coupon.Loader,
	logger zerolog.Logger,
	opts ...Option,
) LedgerService {
	s := &ledgerService{
		repo:   repo,
		loader: loader,
		logger:           logger.With().Str("service", "ledger").Logger(),
		now:              time.Now,
		maxCodes:         DefaultMaxCodes,
		sequenceAttempts: DefaultSequenceAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddCodes merges raw one-time codes into the bucket of a card, creating the
// bucket on first use.
func (s *ledgerService) AddCodes(ctx context.Context, cardID string, codes []string) error {
	principal, err := s.requirePrincipal(ctx, "add_codes")
	if err != nil {
		return err
	}

	cardID, err = validateCardID(cardID)
	if err != nil {
		return err
	}

	codes = coupon.NormalizeCodes(codes)
	if len(codes) == 0 {
		return model.ErrEmptyCodeList
	}
	if len(codes) > s.maxCodes {
		s.logger.Warn().Str("card_id", cardID).Int("code_count", len(codes)).Int("max_codes", s.maxCodes).Msg("too many codes in request")
		return model.ErrTooManyCodes.WithMessage(fmt.Sprintf("A request may carry at most %d codes", s.maxCodes))
	}

	createdAt := s.now().UTC()
	created := false

	err = s.repo.RunInTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		bucket, err := tx.GetBucket(cardID)
		if err != nil {
			if errors.Is(err, repository.ErrNotBucket) {
				return model.ErrCardIDConflict
			}
			return err
		}

		if bucket == nil {
			created = true
			return tx.CreateBucket(&model.RedeemCode{
				CardID:    cardID,
				Codes:     codes,
				CreatedAt: createdAt,
			})
		}

		created = false
		return tx.MergeBucketCodes(cardID, codes)
	})
	if err != nil {
		s.logFailure(err, "add_codes").Str("card_id", cardID).Msg("failed to add redeem codes")
		return s.storeError(err, "failed to add redeem codes")
	}

	s.logger.Info().
		Str("card_id", cardID).
		Str("admin", principal.Subject).
		Int("code_count", len(codes)).
		Bool("bucket_created", created).
		Msg("redeem codes added")

	return nil
}

// ImportCodes loads a newline-separated code list from source and merges it
// into the bucket of a card.
func (s *ledgerService) ImportCodes(ctx context.Context, cardID, source string) (int, error) {
	if _, err := s.requirePrincipal(ctx, "import_codes"); err != nil {
		return 0, err
	}

	cardID, err := validateCardID(cardID)
	if err != nil {
		return 0, err
	}

	cleaned, err := coupon.CleanSource(source)
	if err != nil {
		s.logger.Warn().Str("source", source).Msg("rejected code source")
		return 0, err
	}
	source = cleaned

	if s.loader == nil {
		return 0, model.ErrCodeSourceFailed.WithMessage("No code source loader is configured")
	}

	set, err := s.loader.Load(ctx, source)
	if err != nil {
		s.logFailure(err, "import_codes").Str("source", source).Msg("failed to load code source")
		var de *model.DomainError
		if errors.As(err, &de) {
			return 0, err
		}
		return 0, model.ErrCodeSourceFailed.Wrap(err)
	}

	codes := set.Codes()
	if err := s.AddCodes(ctx, cardID, codes); err != nil {
		return 0, err
	}

	s.logger.Info().
		Str("card_id", cardID).
		Str("source", source).
		Int("imported", len(codes)).
		Msg("redeem codes imported")

	return len(codes), nil
}

// CreatePromoCode registers a promo code against a card. Without a custom
// name the next Promo#### name is drawn from the sequence counter in the
// same transaction that creates the promo document.
func (s *ledgerService) CreatePromoCode(ctx context.Context, req *model.CreatePromoCodeRequest) (*model.PromoCodeResponse, error) {
	principal, err := s.requirePrincipal(ctx, "create_promo_code")
	if err != nil {
		return nil, err
	}

	if req == nil {
		return nil, model.ErrMissingCardID
	}

	cardID := strings.TrimSpace(req.CardID)
	if cardID == "" {
		return nil, model.ErrMissingCardID
	}

	if req.MaxUsage < 1 {
		s.logger.Warn().Int("max_usage", req.MaxUsage).Msg("invalid max usage")
		return nil, model.ErrInvalidMaxUsage
	}

	// Custom names are checked before the store is touched so that a bad
	// name never consumes a sequence number.
	customCode := ""
	if req.CustomCode != nil && *req.CustomCode != "" {
		if err := coupon.ValidateNewName(*req.CustomCode); err != nil {
			s.logger.Warn().Str("custom_code", *req.CustomCode).Msg("invalid custom promo code name")
			return nil, err
		}
		customCode = *req.CustomCode
	}

	createdAt := s.now().UTC()
	var promo *model.PromoCode
	var cardExisted bool

	var txOpts []docstore.TxOption
	if customCode == "" {
		txOpts = append(txOpts, docstore.MaxAttempts(s.sequenceAttempts))
	}

	err = s.repo.RunInTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		// Reads: sequence counter, code name, card. No writes before this block ends.
		code := customCode
		nextIndex := 0
		if code == "" {
			last, err := tx.LastSequence()
			if err != nil {
				return err
			}
			nextIndex = last + 1
			code = coupon.FormatSequenceName(nextIndex)
		}

		exists, err := tx.DocumentExists(code)
		if err != nil {
			return err
		}
		if exists {
			return model.ErrPromoCodeExists.WithMessage(fmt.Sprintf("Promo code %s already exists", code))
		}

		cardExisted, err = tx.CardExists(cardID)
		if err != nil {
			return err
		}

		// Writes.
		if nextIndex > 0 {
			if err := tx.SetLastSequence(nextIndex); err != nil {
				return err
			}
		}

		promo = &model.PromoCode{
			Code:      code,
			CardID:    cardID,
			MaxUsers:  req.MaxUsage,
			UsedBy:    []string{},
			CreatedAt: createdAt,
		}
		if err := tx.CreatePromo(promo); err != nil {
			return err
		}

		return tx.AddCardPromoCode(cardID, code)
	}, txOpts...)
	if err != nil {
		s.logFailure(err, "create_promo_code").
			Str("card_id", cardID).
			Str("custom_code", customCode).
			Msg("failed to create promo code")
		return nil, s.storeError(err, "failed to create promo code")
	}

	s.logger.Info().
		Str("code", promo.Code).
		Str("card_id", cardID).
		Str("admin", principal.Subject).
		Int("max_usage", promo.MaxUsers).
		Bool("auto_named", customCode == "").
		Bool("card_stub_created", !cardExisted).
		Msg("promo code created")

	return &model.PromoCodeResponse{
		Code:          promo.Code,
		CardID:        promo.CardID,
		MaxUsage:      promo.MaxUsers,
		RemainingUses: promo.RemainingUses(),
		CreatedAt:     promo.CreatedAt,
		UsedBy:        []string{},
	}, nil
}

// RedeemPromoCode consumes one use of a promo code for userID. The capacity
// and duplicate checks read the promo document in the same transaction that
// appends the redeemer, so concurrent redemptions are serialised by the store.
func (s *ledgerService) RedeemPromoCode(ctx context.Context, code, userID string) (*model.RedeemResult, error) {
	if err := coupon.ValidateName(code); err != nil {
		s.logger.Debug().Str("code", code).Msg("rejected malformed promo code")
		return nil, err
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, model.ErrMissingUserID
	}

	var result *model.RedeemResult

	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		promo, err := tx.GetPromo(code)
		if err != nil {
			return err
		}
		if promo == nil {
			return model.ErrPromoCodeNotFound
		}

		if promo.MaxUsers <= 0 {
			return model.ErrInvalidPromoConfig
		}

		if promo.HasRedeemed(userID) {
			return model.ErrAlreadyRedeemed
		}

		if promo.MaxUsers-(len(promo.UsedBy)+1) < 0 {
			return model.ErrNoRemainingUses
		}

		if err := tx.RecordRedemption(promo, userID); err != nil {
			return err
		}

		usedBy := make([]string, 0, len(promo.UsedBy)+1)
		usedBy = append(usedBy, promo.UsedBy...)
		usedBy = append(usedBy, userID)
		result = &model.RedeemResult{
			Code:          code,
			RemainingUses: promo.MaxUsers - len(usedBy),
			UsedBy:        usedBy,
		}
		return nil
	})
	if err != nil {
		s.logFailure(err, "redeem_promo_code").
			Str("code", code).
			Str("user_id", userID).
			Msg("promo code redemption rejected")
		return nil, s.storeError(err, "failed to redeem promo code")
	}

	s.logger.Info().
		Str("code", code).
		Str("user_id", userID).
		Int("remaining_uses", result.RemainingUses).
		Msg("promo code redeemed")

	return result, nil
}

// DeletePromoCode removes a promo code and drops its name from the card's
// promoCodes back-reference in the same transaction. Deleting a code that
// does not exist succeeds without writing anything.
func (s *ledgerService) DeletePromoCode(ctx context.Context, code string) error {
	principal, err := s.requirePrincipal(ctx, "delete_promo_code")
	if err != nil {
		return err
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return model.ErrInvalidPromoName.WithMessage("Promo code name is required")
	}

	deleted := false

	err = s.repo.RunInTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		promo, err := tx.GetPromo(code)
		if err != nil {
			return err
		}
		if promo == nil {
			deleted = false
			return nil
		}

		cardExists := false
		if promo.CardID != "" {
			if cardExists, err = tx.CardExists(promo.CardID); err != nil {
				return err
			}
		}

		if err := tx.DeletePromo(code); err != nil {
			return err
		}
		deleted = true

		if cardExists {
			return tx.RemoveCardPromoCode(promo.CardID, code)
		}
		return nil
	})
	if err != nil {
		s.logFailure(err, "delete_promo_code").Str("code", code).Msg("failed to delete promo code")
		return s.storeError(err, "failed to delete promo code")
	}

	if !deleted {
		s.logger.Debug().Str("code", code).Msg("promo code to delete not found")
		return nil
	}

	s.logger.Info().
		Str("code", code).
		Str("admin", principal.Subject).
		Msg("promo code deleted")

	return nil
}

// GetPromoCode retrieves a single promo code.
func (s *ledgerService) GetPromoCode(ctx context.Context, code string) (*model.PromoView, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, model.ErrInvalidPromoName.WithMessage("Promo code name is required")
	}

	promo, err := s.repo.GetPromo(ctx, code)
	if err != nil {
		return nil, s.storeError(err, "failed to get promo code")
	}
	if promo == nil {
		return nil, model.ErrPromoCodeNotFound
	}

	view := model.NewPromoView(promo)
	return &view, nil
}

// ListPromoCodes retrieves all promo codes ordered by name.
func (s *ledgerService) ListPromoCodes(ctx context.Context) ([]model.PromoView, error) {
	promos, err := s.repo.ListPromos(ctx)
	if err != nil {
		return nil, s.storeError(err, "failed to list promo codes")
	}

	s.logger.Debug().Int("count", len(promos)).Msg("promo codes listed")

	return viewsOf(promos), nil
}

// SubscribePromoCodes streams the promo listing to onUpdate.
func (s *ledgerService) SubscribePromoCodes(ctx context.Context, onUpdate func([]model.PromoView)) (func(), error) {
	if onUpdate == nil {
		return nil, fmt.Errorf("subscribe promo codes: nil update callback")
	}

	stop, err := s.repo.WatchPromos(ctx, func(promos []model.PromoCode) {
		onUpdate(viewsOf(promos))
	})
	if err != nil {
		return nil, s.storeError(err, "failed to subscribe to promo codes")
	}

	s.logger.Debug().Msg("promo code subscription started")

	return stop, nil
}

func (s *ledgerService) requirePrincipal(ctx context.Context, op string) (auth.Principal, error) {
	principal, ok := auth.FromContext(ctx)
	if !ok {
		s.logger.Warn().Str("operation", op).Msg("unauthenticated ledger operation")
		return auth.Principal{}, model.ErrUnauthenticated
	}
	return principal, nil
}

// logFailure returns a log event at Warn for domain rejections and at Error
// for everything else.
func (s *ledgerService) logFailure(err error, op string) *zerolog.Event {
	switch model.KindOf(err) {
	case model.KindUnknown, model.KindTransient:
		return s.logger.Error().Err(err).Str("operation", op)
	default:
		var de *model.DomainError
		errors.As(err, &de)
		return s.logger.Warn().Str("operation", op).Str("error_code", de.Code)
	}
}

// storeError passes domain errors through and classifies the rest.
func (s *ledgerService) storeError(err error, msg string) error {
	var de *model.DomainError
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, docstore.ErrTooManyRetries) || errors.Is(err, docstore.ErrClosed) {
		return model.ErrStoreUnavailable.Wrap(err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func validateCardID(cardID string) (string, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return "", model.ErrMissingCardID
	}
	if cardID == repository.SequenceDocID {
		return "", model.ErrInvalidCardID
	}
	return cardID, nil
}

func viewsOf(promos []model.PromoCode) []model.PromoView {
	views := make([]model.PromoView, len(promos))
	for i := range promos {
		views[i] = model.NewPromoView(&promos[i])
	}
	return views
}
