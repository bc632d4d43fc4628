// Package memory is the in-process TransactionStore, used for single-instance
// deployments and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kevin07696/mpesa-bridge/internal/domain"
	"github.com/kevin07696/mpesa-bridge/internal/domain/ports"
)

var _ ports.TransactionStore = (*TransactionStore)(nil)

// TransactionStore keeps transactions in a map guarded by an RWMutex.
// Values are cloned on the way in and out.
type TransactionStore struct {
	mu   sync.RWMutex
	txns map[string]*domain.Transaction
}

// NewTransactionStore creates an empty store
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{txns: make(map[string]*domain.Transaction)}
}

func (s *TransactionStore) Insert(ctx context.Context, txn *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.txns[txn.CheckoutRequestID]; exists {
		return domain.WrapError(domain.ErrorCodeTxnAlreadyExists, "transaction already exists", nil).
			WithDetail("checkout_request_id", txn.CheckoutRequestID)
	}
	s.txns[txn.CheckoutRequestID] = txn.Clone()
	return nil
}

func (s *TransactionStore) Get(ctx context.Context, checkoutRequestID string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txn, ok := s.txns[checkoutRequestID]
	if !ok {
		return nil, domain.ErrTxnNotFound
	}
	return txn.Clone(), nil
}

func (s *TransactionStore) Update(ctx context.Context, txn *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.txns[txn.CheckoutRequestID]
	if !ok {
		return domain.ErrTxnNotFound
	}
	if stored.State.IsTerminal() && stored.State != txn.State {
		return domain.WrapError(domain.ErrorCodeTxnInvalidState, "transaction already resolved", nil).
			WithDetail("checkout_request_id", txn.CheckoutRequestID).
			WithDetail("stored_state", string(stored.State))
	}
	s.txns[txn.CheckoutRequestID] = txn.Clone()
	return nil
}

func (s *TransactionStore) Delete(ctx context.Context, checkoutRequestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.txns, checkoutRequestID)
	return nil
}

// ListCreatedBefore returns matches oldest first
func (s *TransactionStore) ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Transaction
	for _, txn := range s.txns {
		if txn.CreatedAt.Before(cutoff) {
			out = append(out, txn.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *TransactionStore) Ping(ctx context.Context) error {
	return nil
}

// Len returns the number of stored transactions
func (s *TransactionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.txns)
}
