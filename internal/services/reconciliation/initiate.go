package reconciliation

import (
	"context"

	"github.com/kevin07696/mpesa-bridge/internal/domain"
	"github.com/kevin07696/mpesa-bridge/internal/validation"
	"github.com/kevin07696/mpesa-bridge/pkg/observability"
	"go.uber.org/zap"
)

// Initiate validates a checkout, sends the push prompt and records the
// pending transaction under the gateway's checkout request id.
// Invalid input returns domain.ValidationErrors before any network call.
func (s *Service) Initiate(ctx context.Context, req *domain.CheckoutRequest) (*domain.InitiateResult, error) {
	checkout, err := validation.ValidateCheckout(req)
	if err != nil {
		return nil, err
	}

	ref := s.newOrderReference()

	pushCtx, cancel := s.timeouts.ExternalAPIContext(ctx)
	defer cancel()

	push, err := s.gateway.InitiatePush(pushCtx, domain.PushRequest{
		Phone:       checkout.Phone,
		Amount:      checkout.Amount,
		Reference:   ref,
		Description: "Payment for order " + ref,
	})
	if err != nil {
		s.logger.Error("STK push initiation failed",
			zap.String("order_ref", ref),
			zap.String("error_code", string(domain.GetErrorCode(err))),
			zap.Error(err),
		)
		if domain.IsGatewayError(err) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrorCodeGatewayError, "push initiation failed", err)
	}

	r := checkout.Request
	txn := &domain.Transaction{
		CheckoutRequestID: push.CheckoutRequestID,
		MerchantRequestID: push.MerchantRequestID,
		OrderReference:    ref,
		Phone:             checkout.Phone,
		Email:             r.Email,
		CartToken:         r.CartToken,
		CartItems:         r.CartItems,
		Amount:            checkout.Amount,
		State:             domain.StatePending,
		CreatedAt:         s.clock.Now(),
	}
	if r.Shipping != nil {
		txn.Shipping = *r.Shipping
	}

	stripe := s.locks.lock(txn.CheckoutRequestID)
	err = s.store.Insert(ctx, txn)
	stripe.unlock()
	if err != nil {
		// The customer already has the prompt on their handset; whatever
		// they do next will arrive as an unmatched confirmation.
		s.logger.Error("Failed to record pending transaction",
			zap.String("checkout_request_id", txn.CheckoutRequestID),
			zap.String("order_ref", ref),
			zap.Error(err),
		)
		return nil, err
	}
	observability.RecordTransactionInitiated()

	s.logger.Info("STK push initiated",
		zap.String("checkout_request_id", txn.CheckoutRequestID),
		zap.String("merchant_request_id", txn.MerchantRequestID),
		zap.String("order_ref", ref),
		zap.Int64("amount", txn.Amount),
	)

	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Warn("Opportunistic sweep failed", zap.Error(err))
	}

	return &domain.InitiateResult{
		CheckoutRequestID: txn.CheckoutRequestID,
		OrderReference:    ref,
	}, nil
}
