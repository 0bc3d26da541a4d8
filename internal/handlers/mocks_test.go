package handlers

import (
	"context"
	"time"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type MockPayments struct {
	mock.Mock
}

func (m *MockPayments) CreditFromPayment(ctx context.Context, n services.PaymentNotification) (*services.PaymentResult, error) {
	args := m.Called(ctx, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.PaymentResult), args.Error(1)
}

type MockWallets struct {
	mock.Mock
}

func (m *MockWallets) AdminAdjust(ctx context.Context, adj services.AdminAdjustment) (*models.LedgerEntry, error) {
	args := m.Called(ctx, adj)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerEntry), args.Error(1)
}

type MockOffers struct {
	mock.Mock
}

func (m *MockOffers) CreateOffer(ctx context.Context, req services.CreateOfferRequest) (*models.Offer, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Offer), args.Error(1)
}

func (m *MockOffers) SetStatus(ctx context.Context, offerID string, status models.OfferStatus) (*models.Offer, error) {
	args := m.Called(ctx, offerID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Offer), args.Error(1)
}

func (m *MockOffers) GetOffer(ctx context.Context, offerID string) (*models.Offer, error) {
	args := m.Called(ctx, offerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Offer), args.Error(1)
}

type MockRedeemer struct {
	mock.Mock
}

func (m *MockRedeemer) Redeem(ctx context.Context, req services.RedeemRequest) (*services.RedemptionResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.RedemptionResult), args.Error(1)
}

type MockCashback struct {
	mock.Mock
}

func (m *MockCashback) Redeem(ctx context.Context, ownerID string, amount decimal.Decimal) (*services.CashbackRedemption, error) {
	args := m.Called(ctx, ownerID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.CashbackRedemption), args.Error(1)
}

type MockAccounts struct {
	mock.Mock
}

func (m *MockAccounts) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccounts) ListEntries(ctx context.Context, accountID string, limit int, before *time.Time) ([]models.LedgerEntry, error) {
	args := m.Called(ctx, accountID, limit, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.LedgerEntry), args.Error(1)
}

func (m *MockAccounts) Reconcile(ctx context.Context, accountID string) (*models.Reconciliation, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reconciliation), args.Error(1)
}
