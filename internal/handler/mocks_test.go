package handler

import (
	"context"

	"sgl-admin/internal/model"

	"github.com/stretchr/testify/mock"
)

// MockLedgerService is a mock implementation of LedgerService.
type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) AddCodes(ctx context.Context, cardID string, codes []string) error {
	args := m.Called(ctx, cardID, codes)
	return args.Error(0)
}

func (m *MockLedgerService) ImportCodes(ctx context.Context, cardID, source string) (int, error) {
	args := m.Called(ctx, cardID, source)
	return args.Int(0), args.Error(1)
}

func (m *MockLedgerService) CreatePromoCode(ctx context.Context, req *model.CreatePromoCodeRequest) (*model.PromoCodeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PromoCodeResponse), args.Error(1)
}

func (m *MockLedgerService) RedeemPromoCode(ctx context.Context, code, userID string) (*model.RedeemResult, error) {
	args := m.Called(ctx, code, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RedeemResult), args.Error(1)
}

func (m *MockLedgerService) DeletePromoCode(ctx context.Context, code string) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

func (m *MockLedgerService) GetPromoCode(ctx context.Context, code string) (*model.PromoView, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PromoView), args.Error(1)
}

func (m *MockLedgerService) ListPromoCodes(ctx context.Context) ([]model.PromoView, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PromoView), args.Error(1)
}

func (m *MockLedgerService) SubscribePromoCodes(ctx context.Context, onUpdate func([]model.PromoView)) (func(), error) {
	args := m.Called(ctx, onUpdate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func()), args.Error(1)
}
