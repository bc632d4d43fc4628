package ports

import (
	"context"

	"github.com/kevin07696/mpesa-bridge/internal/domain"
	"github.com/shopspring/decimal"
)

// PaymentService defines the business logic behind the payment HTTP surface.
// Implemented by reconciliation.Service.
type PaymentService interface {
	// Initiate validates a checkout and sends the push prompt.
	// Returns *domain.ValidationErrors for bad input.
	Initiate(ctx context.Context, req *domain.CheckoutRequest) (*domain.InitiateResult, error)

	// HandleConfirmation applies a raw gateway callback. Callers acknowledge
	// the gateway whatever the outcome.
	HandleConfirmation(ctx context.Context, payload []byte) (domain.ConfirmationOutcome, error)

	// GetStatus returns the polling view; an unknown id yields StatusNotFound
	GetStatus(ctx context.Context, checkoutRequestID string) (*domain.StatusView, error)

	// ValidateCart returns *domain.CartError when the cart cannot be paid for
	ValidateCart(ctx context.Context, items []domain.CartItem, totalAmount *decimal.Decimal) error
}
