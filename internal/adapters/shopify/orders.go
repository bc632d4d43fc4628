package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kevin07696/mpesa-bridge/internal/domain"
	"github.com/kevin07696/mpesa-bridge/pkg/resilience"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	paymentGateway = "M-Pesa"
	orderTag       = "mpesa-payment"
	variantGIDPath = "gid://shopify/ProductVariant/"
)

// CreateOrderForTransaction creates a paid order for a confirmed payment.
// One attempt only; the caller records failures against the receipt.
func (c *Client) CreateOrderForTransaction(ctx context.Context, txn *domain.Transaction) (*domain.CommerceOrder, error) {
	if txn.MpesaReceiptNumber == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeCommerceError, "transaction has no payment receipt").
			WithDetail("checkout_request_id", txn.CheckoutRequestID)
	}

	phone := e164(txn.Phone)
	shipping := buildAddress(txn.Shipping, phone)

	payload := createOrderRequest{Order: orderInput{
		LineItems:              buildLineItems(txn.CartItems),
		Customer:               c.resolveCustomer(ctx, phone, txn.Email, shipping),
		ShippingAddress:        shipping,
		BillingAddress:         shipping,
		Email:                  txn.Email,
		Phone:                  phone,
		FinancialStatus:        "paid",
		SendReceipt:            txn.Email != "",
		SendFulfillmentReceipt: txn.Email != "",
		Note:                   orderNote(txn),
		NoteAttributes: []noteAttribute{
			{Name: "Payment Method", Value: paymentGateway},
			{Name: "M-Pesa Receipt", Value: txn.MpesaReceiptNumber},
			{Name: "Order Reference", Value: txn.OrderReference},
		},
		Tags: orderTag,
		Transactions: []orderTransaction{{
			Kind:    "sale",
			Status:  "success",
			Amount:  decimal.NewFromInt(txn.Amount).StringFixed(2),
			Gateway: paymentGateway,
		}},
	}}

	c.logger.Info("Creating Shopify order",
		zap.String("checkout_request_id", txn.CheckoutRequestID),
		zap.String("order_ref", txn.OrderReference),
		zap.String("receipt", txn.MpesaReceiptNumber),
		zap.Int("line_items", len(payload.Order.LineItems)),
	)

	start := time.Now()
	var resp orderResponse
	err := c.breaker.Call(func() error {
		return c.request(ctx, http.MethodPost, "/orders.json", payload, &resp)
	}, isClientError)
	c.observe("create_order", start, err)
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyProbes) {
			return nil, domain.WrapError(domain.ErrorCodeCommerceError, "shopify unavailable", err)
		}
		return nil, domain.WrapError(domain.ErrorCodeCommerceError, "order creation failed", err)
	}

	order := &domain.CommerceOrder{
		ID:          strconv.FormatInt(resp.Order.ID, 10),
		Name:        resp.Order.Name,
		OrderNumber: resp.Order.OrderNumber,
		StatusURL:   resp.Order.OrderStatusURL,
		TotalPrice:  resp.Order.TotalPrice,
	}

	c.logger.Info("Shopify order created",
		zap.String("checkout_request_id", txn.CheckoutRequestID),
		zap.String("order_id", order.ID),
		zap.String("order_name", order.Name),
	)

	return order, nil
}

// CheckInventory reports stock for a variant; lookup failures report available
func (c *Client) CheckInventory(ctx context.Context, variantID domain.VariantID) (*domain.InventoryStatus, error) {
	id, ok := numericVariantID(variantID)
	if !ok {
		return &domain.InventoryStatus{Available: true}, nil
	}

	start := time.Now()
	var resp variantResponse
	err := c.request(ctx, http.MethodGet, "/variants/"+id+".json", nil, &resp)
	c.observe("get_variant", start, err)
	if err != nil {
		c.logger.Warn("Inventory check failed, assuming available",
			zap.String("variant_id", id),
			zap.Error(err),
		)
		return &domain.InventoryStatus{Available: true}, nil
	}

	return &domain.InventoryStatus{
		Available: resp.Variant.InventoryQuantity > 0 || resp.Variant.InventoryPolicy == "continue",
		Quantity:  resp.Variant.InventoryQuantity,
	}, nil
}

// resolveCustomer reuses a customer with the same phone, or describes a new one.
// Search failures fall through to a new customer.
func (c *Client) resolveCustomer(ctx context.Context, phone, email string, addr address) customer {
	newCustomer := customer{
		FirstName: addr.FirstName,
		LastName:  addr.LastName,
		Email:     email,
		Phone:     phone,
	}
	if phone == "" {
		return newCustomer
	}

	start := time.Now()
	var resp customerSearchResponse
	err := c.request(ctx, http.MethodGet, "/customers/search.json?query="+url.QueryEscape("phone:"+phone), nil, &resp)
	c.observe("customer_search", start, err)
	if err != nil {
		c.logger.Warn("Customer search failed, creating new customer", zap.Error(err))
		return newCustomer
	}
	if len(resp.Customers) == 0 || resp.Customers[0].ID == 0 {
		return newCustomer
	}

	c.logger.Debug("Found existing customer", zap.Int64("customer_id", resp.Customers[0].ID))
	return customer{ID: resp.Customers[0].ID}
}

func buildLineItems(items []domain.CartItem) []lineItem {
	out := make([]lineItem, 0, len(items))
	for _, item := range items {
		if id, ok := numericVariantID(item.VariantID); ok {
			out = append(out, lineItem{VariantID: json.Number(id), Quantity: item.Quantity})
			continue
		}

		title := item.Title
		if title == "" {
			title = string(item.VariantID)
		}
		price := decimal.Zero
		if item.Price != nil {
			price = *item.Price
		}
		out = append(out, lineItem{
			Title:            title,
			Price:            price.StringFixed(2),
			Quantity:         item.Quantity,
			RequiresShipping: true,
		})
	}
	return out
}

// numericVariantID accepts a bare id or a ProductVariant GID
func numericVariantID(v domain.VariantID) (string, bool) {
	id := strings.TrimPrefix(strings.TrimSpace(string(v)), variantGIDPath)
	if id == "" {
		return "", false
	}
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return "", false
	}
	return id, true
}

func buildAddress(s domain.ShippingAddress, phone string) address {
	first, last := splitName(s.FullName)
	return address{
		FirstName:   first,
		LastName:    last,
		Address1:    s.Address,
		City:        s.City,
		Province:    s.County,
		Country:     "Kenya",
		CountryCode: "KE",
		Phone:       phone,
	}
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func orderNote(txn *domain.Transaction) string {
	note := "Paid via M-Pesa. Receipt: " + txn.MpesaReceiptNumber
	if notes := strings.TrimSpace(txn.Shipping.Notes); notes != "" {
		note += "\nDelivery notes: " + notes
	}
	return note
}

// e164 turns 254712345678 into +254712345678
func e164(phone string) string {
	if phone == "" || strings.HasPrefix(phone, "+") {
		return phone
	}
	return "+" + phone
}
