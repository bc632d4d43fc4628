package ports

import (
	"context"

	"github.com/kevin07696/mpesa-bridge/internal/domain"
)

// PaymentGateway defines the port for a mobile-money push payment provider
type PaymentGateway interface {
	// InitiatePush prompts the customer's handset to authorize a payment.
	// Returns a GATEWAY_* domain error when the provider rejects the push
	// or cannot be reached.
	InitiatePush(ctx context.Context, req domain.PushRequest) (*domain.PushResult, error)

	// QueryStatus actively asks the provider for the outcome of a push.
	// Read-only; callers never mutate state from the result.
	QueryStatus(ctx context.Context, checkoutRequestID string) (*domain.GatewayStatus, error)

	// ParseConfirmation decodes the provider's asynchronous result callback
	ParseConfirmation(body []byte) (*domain.Confirmation, error)
}
