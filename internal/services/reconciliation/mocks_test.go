package reconciliation

import (
	"context"

	"github.com/kevin07696/mpesa-bridge/internal/domain"
	"github.com/stretchr/testify/mock"
)

// MockGateway is a mock implementation of ports.PaymentGateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) InitiatePush(ctx context.Context, req domain.PushRequest) (*domain.PushResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PushResult), args.Error(1)
}

func (m *MockGateway) QueryStatus(ctx context.Context, checkoutRequestID string) (*domain.GatewayStatus, error) {
	args := m.Called(ctx, checkoutRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GatewayStatus), args.Error(1)
}

func (m *MockGateway) ParseConfirmation(body []byte) (*domain.Confirmation, error) {
	args := m.Called(body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Confirmation), args.Error(1)
}

// MockCommerce is a mock implementation of ports.CommerceClient
type MockCommerce struct {
	mock.Mock
}

func (m *MockCommerce) CreateOrderForTransaction(ctx context.Context, txn *domain.Transaction) (*domain.CommerceOrder, error) {
	args := m.Called(ctx, txn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CommerceOrder), args.Error(1)
}

func (m *MockCommerce) CheckInventory(ctx context.Context, variantID domain.VariantID) (*domain.InventoryStatus, error) {
	args := m.Called(ctx, variantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.InventoryStatus), args.Error(1)
}
