package ports

import (
	"context"
	"time"

	"github.com/kevin07696/mpesa-bridge/internal/domain"
)

// TransactionStore defines the interface for transaction persistence.
// Implementations return copies; mutating a returned transaction never
// changes stored state until Update is called.
type TransactionStore interface {
	// Insert stores a new transaction. Returns ErrTxnAlreadyExists if the
	// checkout request id is already present.
	Insert(ctx context.Context, txn *domain.Transaction) error

	// Get retrieves a transaction by checkout request id.
	// Returns ErrTxnNotFound if absent.
	Get(ctx context.Context, checkoutRequestID string) (*domain.Transaction, error)

	// Update replaces a stored transaction. Returns ErrTxnNotFound if absent
	// and ErrTxnInvalidState if the stored row is terminal in another state.
	Update(ctx context.Context, txn *domain.Transaction) error

	// Delete removes a transaction; deleting an absent id is not an error
	Delete(ctx context.Context, checkoutRequestID string) error

	// ListCreatedBefore returns transactions created strictly before cutoff
	ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Transaction, error)

	// Ping checks the backing store is reachable
	Ping(ctx context.Context) error
}
