package reconciliation

import (
	"context"
	"time"

	"github.com/kevin07696/mpesa-bridge/internal/domain"
	"github.com/kevin07696/mpesa-bridge/pkg/observability"
	"go.uber.org/zap"
)

func (s *Service) retentionFor(state domain.TransactionState) time.Duration {
	if state == domain.StatePaymentReceivedOrderFailed {
		return s.unresolvedRetention
	}
	return s.retention
}

// Sweep evicts transactions older than their retention window, whatever
// their state. Claimed transactions are skipped; each candidate is
// re-read under its key lock so a concurrent transition is respected.
// Held fulfillment results are written first. Returns the number evicted.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	s.flushUnsaved(ctx)

	now := s.clock.Now()
	shortest := min(s.retention, s.unresolvedRetention)

	candidates, err := s.store.ListCreatedBefore(ctx, now.Add(-shortest))
	if err != nil {
		return 0, err
	}

	evicted := 0
	for _, candidate := range candidates {
		ok, err := s.evict(ctx, candidate.CheckoutRequestID, now)
		if err != nil {
			s.logger.Warn("Failed to evict transaction",
				zap.String("checkout_request_id", candidate.CheckoutRequestID),
				zap.Error(err),
			)
			continue
		}
		if ok {
			evicted++
		}
	}

	if evicted > 0 {
		s.logger.Debug("Retention sweep finished",
			zap.Int("evicted", evicted),
			zap.Int("candidates", len(candidates)),
		)
	}
	return evicted, nil
}

func (s *Service) evict(ctx context.Context, id string, now time.Time) (bool, error) {
	stripe := s.locks.lock(id)
	defer stripe.unlock()

	if stripe.isClaimed(id) {
		return false, nil
	}

	txn, err := s.store.Get(ctx, id)
	if domain.IsNotFoundError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !txn.CreatedAt.Before(now.Add(-s.retentionFor(txn.State))) {
		return false, nil
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return false, err
	}
	observability.RecordEviction(string(txn.State))

	if txn.State == domain.StatePaymentReceivedOrderFailed {
		s.logger.Error("Evicted paid transaction without an order",
			zap.String("checkout_request_id", id),
			zap.String("mpesa_receipt", txn.MpesaReceiptNumber),
			zap.String("order_ref", txn.OrderReference),
			zap.String("phone", txn.Phone),
			zap.Int64("amount", txn.Amount),
			zap.String("error", txn.ErrorDetail),
		)
	}
	return true, nil
}

// RunSweeper sweeps every interval until ctx is done
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Retention sweeper started",
		zap.Duration("interval", interval),
		zap.Duration("retention", s.retention),
		zap.Duration("unresolved_retention", s.unresolvedRetention),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping retention sweeper")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Warn("Retention sweep failed", zap.Error(err))
			}
		}
	}
}
