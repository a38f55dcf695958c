package service

import (
	"context"

	"sgl-admin/internal/coupon"
	"sgl-admin/internal/docstore"
	"sgl-admin/internal/model"
	"sgl-admin/internal/repository"

	"github.com/stretchr/testify/mock"
)

// MockLedgerRepository is a mock implementation of LedgerRepository.
// Transaction options are recorded in txOpts rather than matched.
type MockLedgerRepository struct {
	mock.Mock
	txOpts [][]docstore.TxOption
}

func (m *MockLedgerRepository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.LedgerTx) error, opts ...docstore.TxOption) error {
	m.txOpts = append(m.txOpts, opts)
	args := m.Called(ctx, fn)
	return args.Error(0)
}

func (m *MockLedgerRepository) GetPromo(ctx context.Context, code string) (*model.PromoCode, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PromoCode), args.Error(1)
}

func (m *MockLedgerRepository) ListPromos(ctx context.Context) ([]model.PromoCode, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PromoCode), args.Error(1)
}

func (m *MockLedgerRepository) GetBucket(ctx context.Context, cardID string) (*model.RedeemCode, error) {
	args := m.Called(ctx, cardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RedeemCode), args.Error(1)
}

func (m *MockLedgerRepository) WatchPromos(ctx context.Context, fn func([]model.PromoCode)) (func(), error) {
	args := m.Called(ctx, fn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func()), args.Error(1)
}

// MockLoader is a mock implementation of coupon.Loader.
type MockLoader struct {
	mock.Mock
}

func (m *MockLoader) Load(ctx context.Context, path string) (coupon.CodeSet, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(coupon.CodeSet), args.Error(1)
}

// codeList is a minimal coupon.CodeSet over a fixed slice.
type codeList []string

func (c codeList) Size() int { return len(c) }

func (c codeList) Codes() []string { return append([]string{}, c...) }

func strPtr(s string) *string { return &s }
