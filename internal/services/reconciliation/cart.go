package reconciliation

import (
	"context"

	"github.com/kevin07696/mpesa-bridge/internal/domain"
	"github.com/kevin07696/mpesa-bridge/internal/validation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ValidateCart checks cart shape, the optional total, and stock for items
// that carry a variant id. Inventory lookups that fail count as in stock.
func (s *Service) ValidateCart(ctx context.Context, items []domain.CartItem, totalAmount *decimal.Decimal) error {
	if err := validation.ValidateCartItems(items); err != nil {
		return &domain.CartError{Message: err.Error()}
	}
	if totalAmount != nil {
		if _, err := validation.NormalizeAmount(totalAmount); err != nil {
			return &domain.CartError{Message: err.Error()}
		}
	}

	for _, item := range items {
		if item.VariantID == "" {
			continue
		}
		stock, err := s.commerce.CheckInventory(ctx, item.VariantID)
		if err != nil {
			s.logger.Warn("Inventory check failed, assuming available",
				zap.String("variant_id", string(item.VariantID)),
				zap.Error(err),
			)
			continue
		}
		if !stock.Available {
			return &domain.CartError{Message: "Item out of stock", VariantID: item.VariantID}
		}
	}
	return nil
}
