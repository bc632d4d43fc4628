package reconciliation

import (
	"context"
	"time"

	"github.com/kevin07696/mpesa-bridge/internal/domain"
	"github.com/kevin07696/mpesa-bridge/pkg/observability"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// HandleConfirmation applies a gateway result callback. Whatever the
// outcome, the caller acknowledges the gateway; the returned error is for
// logging only.
//
// A success result claims the transaction, creates the order outside the
// lock, then commits completed or payment_received_order_failed. Redelivered
// callbacks for claimed or terminal transactions are no-ops.
func (s *Service) HandleConfirmation(ctx context.Context, payload []byte) (domain.ConfirmationOutcome, error) {
	conf, err := s.gateway.ParseConfirmation(payload)
	if err != nil {
		s.logger.Warn("Discarding malformed confirmation callback", zap.Error(err))
		return domain.OutcomeMalformed, err
	}
	if conf.Success && conf.ReceiptNumber == "" {
		err := domain.NewDomainError(domain.ErrorCodeValidationFailed, "successful confirmation without a receipt number").
			WithDetail("checkout_request_id", conf.CheckoutRequestID)
		s.logger.Error("Discarding success confirmation without a receipt",
			zap.String("checkout_request_id", conf.CheckoutRequestID),
			zap.String("result_desc", conf.ResultDesc),
		)
		return domain.OutcomeMalformed, err
	}

	// A gateway disconnect must not abort order creation half way
	ctx, cancel := s.timeouts.ConfirmationContext(ctx)
	defer cancel()

	id := conf.CheckoutRequestID
	log := s.logger.With(
		zap.String("checkout_request_id", id),
		zap.String("result_code", conf.ResultCode),
	)

	stripe := s.locks.lock(id)
	if held := stripe.held(id); held != nil {
		defer stripe.unlock()
		observability.RecordDuplicateConfirmation()
		if err := s.persistHeld(ctx, stripe, held); err != nil {
			return domain.OutcomeStoreError, err
		}
		return domain.OutcomeDuplicate, nil
	}

	txn, err := s.store.Get(ctx, id)
	switch {
	case domain.IsNotFoundError(err):
		stripe.unlock()
		observability.RecordReconciliationMiss()
		log.Warn("Confirmation for unknown transaction",
			zap.String("mpesa_receipt", conf.ReceiptNumber),
			zap.Bool("success", conf.Success),
		)
		return domain.OutcomeUnknown, nil
	case err != nil:
		stripe.unlock()
		log.Error("Failed to load transaction for confirmation", zap.Error(err))
		return domain.OutcomeStoreError, err
	}

	if txn.State.IsTerminal() || stripe.isClaimed(id) {
		stripe.unlock()
		observability.RecordDuplicateConfirmation()
		log.Info("Ignoring duplicate confirmation",
			zap.String("state", string(txn.State)),
			zap.String("mpesa_receipt", conf.ReceiptNumber),
		)
		return domain.OutcomeDuplicate, nil
	}

	if !conf.Success {
		defer stripe.unlock()
		if err := txn.Fail(conf.ResultDesc); err != nil {
			return domain.OutcomeStoreError, err
		}
		if err := s.store.Update(ctx, txn); err != nil {
			log.Error("Failed to record failed payment", zap.Error(err))
			return domain.OutcomeStoreError, err
		}
		observability.RecordTransition(string(domain.StateFailed), txn.Amount, false)
		log.Info("Payment failed or cancelled", zap.String("result_desc", conf.ResultDesc))
		return domain.OutcomeFailed, nil
	}

	stripe.claim(id)
	stripe.unlock()

	if !conf.Amount.IsZero() && !conf.Amount.Equal(decimal.NewFromInt(txn.Amount)) {
		log.Warn("Confirmed amount differs from requested amount",
			zap.Int64("requested", txn.Amount),
			zap.String("confirmed", conf.Amount.String()),
		)
	}

	return s.fulfil(ctx, log, txn, conf)
}

// fulfil runs order creation for a claimed transaction and commits the
// result under the lock. The claim is released once the result is stored;
// if the store keeps refusing it, the result is held and the claim kept so
// no later delivery creates a second order.
func (s *Service) fulfil(ctx context.Context, log *zap.Logger, txn *domain.Transaction, conf *domain.Confirmation) (domain.ConfirmationOutcome, error) {
	id := txn.CheckoutRequestID
	receipt := conf.ReceiptNumber

	order, orderErr := s.createOrder(ctx, txn, receipt)
	if order != nil {
		log = log.With(zap.String("order_id", order.ID), zap.String("order_name", order.Name))
	}

	stripe := s.locks.lock(id)
	defer stripe.unlock()

	current, err := s.store.Get(ctx, id)
	switch {
	case domain.IsNotFoundError(err):
		stripe.release(id)
		log.Error("Transaction vanished during fulfillment",
			zap.String("mpesa_receipt", receipt),
			zap.Bool("order_created", orderErr == nil),
			zap.Error(err),
		)
		return domain.OutcomeStoreError, err
	case err != nil:
		// claimed: nothing else has written it since the first read
		log.Warn("Reload before commit failed, committing from claimed copy", zap.Error(err))
		current = txn.Clone()
	case current.State.IsTerminal():
		stripe.release(id)
		observability.RecordDuplicateConfirmation()
		log.Warn("Transaction resolved elsewhere during fulfillment",
			zap.String("state", string(current.State)),
			zap.String("mpesa_receipt", receipt),
		)
		return domain.OutcomeDuplicate, nil
	}

	outcome := domain.OutcomeCompleted
	if orderErr != nil {
		outcome = domain.OutcomeOrderFailed
		err = current.FailFulfillment(receipt, orderErr.Error())
	} else {
		err = current.Complete(receipt, *order, s.clock.Now())
	}
	if err != nil {
		stripe.release(id)
		return domain.OutcomeStoreError, err
	}

	if err := s.commit(ctx, current); err != nil {
		if !retryableStoreError(err) {
			stripe.release(id)
			log.Error("Store rejected fulfillment result",
				zap.String("mpesa_receipt", receipt),
				zap.String("outcome", string(outcome)),
				zap.Error(err),
			)
			return domain.OutcomeStoreError, err
		}
		stripe.hold(id, current)
		log.Error("Failed to record fulfillment result, holding it for retry",
			zap.String("mpesa_receipt", receipt),
			zap.String("outcome", string(outcome)),
			zap.Int("attempts", s.commitAttempts),
			zap.Error(err),
		)
		return domain.OutcomeStoreError, err
	}
	stripe.release(id)
	observability.RecordTransition(string(current.State), current.Amount, true)

	if orderErr != nil {
		log.Error("Payment received but order creation failed",
			zap.String("mpesa_receipt", receipt),
			zap.String("order_ref", current.OrderReference),
			zap.Int64("amount", current.Amount),
			zap.Error(orderErr),
		)
		return outcome, nil
	}

	log.Info("Order created for confirmed payment",
		zap.String("mpesa_receipt", receipt),
		zap.String("order_ref", current.OrderReference),
	)
	return outcome, nil
}

// commit writes a resolved transaction, retrying transient store errors.
// Called with the key locked.
func (s *Service) commit(ctx context.Context, txn *domain.Transaction) error {
	var err error
	for attempt := 0; attempt < s.commitAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return err
			case <-time.After(s.commitBackoff.NextDelay(attempt - 1)):
			}
		}
		if err = s.store.Update(ctx, txn); err == nil || !retryableStoreError(err) {
			return err
		}
	}
	return err
}

// persistHeld retries the write of a held fulfillment result once.
// Called with the key locked; on success the claim is released.
func (s *Service) persistHeld(ctx context.Context, stripe *lockStripe, txn *domain.Transaction) error {
	id := txn.CheckoutRequestID
	log := s.logger.With(
		zap.String("checkout_request_id", id),
		zap.String("state", string(txn.State)),
		zap.String("mpesa_receipt", txn.MpesaReceiptNumber),
	)
	if txn.CommerceOrder != nil {
		log = log.With(zap.String("order_id", txn.CommerceOrder.ID), zap.String("order_name", txn.CommerceOrder.Name))
	}

	err := s.store.Update(ctx, txn)
	if err != nil && retryableStoreError(err) {
		log.Warn("Held fulfillment result still not recorded", zap.Error(err))
		return err
	}

	stripe.drop(id)
	stripe.release(id)
	if err != nil {
		log.Error("Store rejected held fulfillment result", zap.Error(err))
		return err
	}
	observability.RecordTransition(string(txn.State), txn.Amount, true)
	log.Info("Recorded held fulfillment result")
	return nil
}

// flushUnsaved retries every held fulfillment result
func (s *Service) flushUnsaved(ctx context.Context) {
	s.locks.eachUnsaved(func(stripe *lockStripe, _ string, txn *domain.Transaction) {
		_ = s.persistHeld(ctx, stripe, txn)
	})
}

// retryableStoreError is false for rejections a retry cannot change
func retryableStoreError(err error) bool {
	if domain.IsNotFoundError(err) {
		return false
	}
	return domain.GetErrorCode(err) != domain.ErrorCodeTxnInvalidState
}

// createOrder is a single best-effort attempt
func (s *Service) createOrder(ctx context.Context, txn *domain.Transaction, receipt string) (*domain.CommerceOrder, error) {
	start := time.Now()

	orderCtx, cancel := s.timeouts.ExternalAPIContext(ctx)
	defer cancel()

	paid := txn.Clone()
	paid.MpesaReceiptNumber = receipt
	order, err := s.commerce.CreateOrderForTransaction(orderCtx, paid)
	if err == nil && order == nil {
		err = domain.NewDomainError(domain.ErrorCodeFulfillmentFailed, "commerce client returned no order")
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	observability.RecordFulfillment(outcome, time.Since(start))
	return order, err
}
