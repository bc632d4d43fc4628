package ports

import (
	"context"

	"github.com/kevin07696/mpesa-bridge/internal/domain"
)

// CommerceClient defines the port for the store that fulfils paid orders
type CommerceClient interface {
	// CreateOrderForTransaction creates a paid order from a confirmed transaction.
	// The transaction must carry its receipt number.
	CreateOrderForTransaction(ctx context.Context, txn *domain.Transaction) (*domain.CommerceOrder, error)

	// CheckInventory reports stock for one variant. Lookup failures are
	// reported as available so a flaky admin API never blocks checkout.
	CheckInventory(ctx context.Context, variantID domain.VariantID) (*domain.InventoryStatus, error)
}
