package reconciliation

import (
	"context"

	"github.com/kevin07696/mpesa-bridge/internal/domain"
	"github.com/kevin07696/mpesa-bridge/pkg/observability"
	"go.uber.org/zap"
)

const (
	msgNotFound   = "Transaction not found"
	msgCompleted  = "Payment successful"
	msgFailed     = "Payment failed or was cancelled"
	msgOrderError = "Payment received but order creation failed. Please contact support."
	msgProcessing = "Payment received, creating order..."
	msgPending    = "Waiting for payment confirmation..."
)

// Gateway result codes that mean the customer has not finished yet.
// 4999 and 500.001.1001 are returned while the prompt is still open.
var pendingResultCodes = map[string]bool{
	"1":            true,
	"4999":         true,
	"500.001.1001": true,
}

// GetStatus returns the caller-facing view of a transaction. Terminal
// states come from the store; a pending transaction is checked against the
// gateway, but that answer never changes stored state.
func (s *Service) GetStatus(ctx context.Context, checkoutRequestID string) (*domain.StatusView, error) {
	txn, err := s.store.Get(ctx, checkoutRequestID)
	if domain.IsNotFoundError(err) {
		return &domain.StatusView{Status: domain.StatusNotFound, Message: msgNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	view := &domain.StatusView{OrderReference: txn.OrderReference}

	switch txn.State {
	case domain.StateCompleted:
		view.Success = true
		view.Status = domain.StatusCompleted
		view.Message = msgCompleted
		view.MpesaReceiptNumber = txn.MpesaReceiptNumber
		if txn.CommerceOrder != nil {
			view.OrderNumber = txn.CommerceOrder.Name
			view.OrderStatusURL = txn.CommerceOrder.StatusURL
		}
	case domain.StateFailed:
		view.Status = domain.StatusFailed
		view.Message = txn.ErrorDetail
		if view.Message == "" {
			view.Message = msgFailed
		}
	case domain.StatePaymentReceivedOrderFailed:
		view.Status = domain.StatusOrderError
		view.Message = msgOrderError
		view.MpesaReceiptNumber = txn.MpesaReceiptNumber
	default:
		s.liveStatus(ctx, txn, view)
	}
	return view, nil
}

// liveStatus interprets the gateway's answer for a pending transaction.
// Query failures read as still pending so a flaky check never reports a
// failed payment to a waiting customer.
func (s *Service) liveStatus(ctx context.Context, txn *domain.Transaction, view *domain.StatusView) {
	queryCtx, cancel := s.timeouts.StatusQueryContext(ctx)
	defer cancel()

	status, err := s.gateway.QueryStatus(queryCtx, txn.CheckoutRequestID)
	switch {
	case err != nil:
		s.logger.Warn("Status query failed, reporting pending",
			zap.String("checkout_request_id", txn.CheckoutRequestID),
			zap.Error(err),
		)
		observability.RecordStatusFallback("query_error")
		view.Status = domain.StatusPending
		view.Message = msgPending
	case status.ResultCode == "0":
		// Confirmed by the gateway but the callback has not run order creation yet
		observability.RecordStatusFallback("processing")
		view.Success = true
		view.Status = domain.StatusProcessing
		view.Message = msgProcessing
	case pendingResultCodes[status.ResultCode]:
		observability.RecordStatusFallback("pending")
		view.Status = domain.StatusPending
		view.Message = msgPending
	default:
		observability.RecordStatusFallback("failed")
		view.Status = domain.StatusFailed
		view.Message = status.ResultDesc
		if view.Message == "" {
			view.Message = msgFailed
		}
	}
}
