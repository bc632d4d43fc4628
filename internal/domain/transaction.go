package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionState is the reconciliation lifecycle of a push payment
type TransactionState string

const (
	// StatePending: push sent, waiting for the gateway's confirmation callback
	StatePending TransactionState = "pending"
	// StateCompleted: payment confirmed and order created
	StateCompleted TransactionState = "completed"
	// StateFailed: payment declined, cancelled or timed out on the handset
	StateFailed TransactionState = "failed"
	// StatePaymentReceivedOrderFailed: money received, order creation failed.
	// Needs a human or a reconciliation job.
	StatePaymentReceivedOrderFailed TransactionState = "payment_received_order_failed"
)

// IsTerminal reports whether no further transition may leave this state
func (s TransactionState) IsTerminal() bool {
	return s != StatePending
}

// CanTransitionTo reports whether next is reachable from s.
// Only pending may move, and only forward.
func (s TransactionState) CanTransitionTo(next TransactionState) bool {
	if s != StatePending {
		return false
	}
	switch next {
	case StateCompleted, StateFailed, StatePaymentReceivedOrderFailed:
		return true
	default:
		return false
	}
}

// VariantID is a commerce platform variant identifier. Storefront carts send
// it as a JSON number, hand-built clients often as a string; both are accepted.
type VariantID string

// UnmarshalJSON accepts a JSON number, string or null
func (v *VariantID) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == "" {
		*v = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = VariantID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("variant_id must be a number or string: %w", err)
	}
	*v = VariantID(n.String())
	return nil
}

// CartItem is one storefront cart line
type CartItem struct {
	VariantID VariantID        `json:"variant_id,omitempty"`
	Title     string           `json:"title,omitempty"`
	Quantity  int              `json:"quantity"`
	Price     *decimal.Decimal `json:"price,omitempty"`
}

// ShippingAddress is the delivery address captured at checkout
type ShippingAddress struct {
	FullName string `json:"fullName"`
	Address  string `json:"address"`
	City     string `json:"city"`
	County   string `json:"county"`
	Notes    string `json:"notes,omitempty"`
}

// CommerceOrder is the result of creating the paid order
type CommerceOrder struct {
	ID          string `json:"id"`
	Name        string `json:"name"` // display number, e.g. "#1001"
	OrderNumber int64  `json:"orderNumber,omitempty"`
	StatusURL   string `json:"orderStatusUrl"`
	TotalPrice  string `json:"totalPrice,omitempty"`
}

// Transaction correlates an initiated push payment with its confirmation
type Transaction struct {
	CreatedAt          time.Time        `json:"createdAt"`
	CompletedAt        *time.Time       `json:"completedAt,omitempty"`
	CommerceOrder      *CommerceOrder   `json:"commerceOrder,omitempty"`
	Shipping           ShippingAddress  `json:"shipping"`
	CheckoutRequestID  string           `json:"checkoutRequestId"`
	MerchantRequestID  string           `json:"merchantRequestId"`
	OrderReference     string           `json:"orderRef"`
	Phone              string           `json:"phone"`
	Email              string           `json:"email,omitempty"`
	CartToken          string           `json:"cartToken,omitempty"`
	MpesaReceiptNumber string           `json:"mpesaReceiptNumber,omitempty"`
	ErrorDetail        string           `json:"error,omitempty"`
	State              TransactionState `json:"status"`
	CartItems          []CartItem       `json:"cartItems"`
	Amount             int64            `json:"amount"`
}

// Clone returns a deep copy so stores never hand out shared mutable state
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	cp := *t
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	if t.CommerceOrder != nil {
		order := *t.CommerceOrder
		cp.CommerceOrder = &order
	}
	if t.CartItems != nil {
		cp.CartItems = make([]CartItem, len(t.CartItems))
		copy(cp.CartItems, t.CartItems)
	}
	return &cp
}

// Complete records a confirmed payment whose order was created
func (t *Transaction) Complete(receipt string, order CommerceOrder, at time.Time) error {
	if !t.State.CanTransitionTo(StateCompleted) {
		return t.invalidTransition(StateCompleted)
	}
	t.State = StateCompleted
	t.MpesaReceiptNumber = receipt
	t.CommerceOrder = &order
	t.CompletedAt = &at
	t.ErrorDetail = ""
	return nil
}

// FailFulfillment records a confirmed payment whose order could not be created.
// The receipt is kept: money has changed hands.
func (t *Transaction) FailFulfillment(receipt, detail string) error {
	if !t.State.CanTransitionTo(StatePaymentReceivedOrderFailed) {
		return t.invalidTransition(StatePaymentReceivedOrderFailed)
	}
	t.State = StatePaymentReceivedOrderFailed
	t.MpesaReceiptNumber = receipt
	t.ErrorDetail = detail
	return nil
}

// Fail records a declined or cancelled payment
func (t *Transaction) Fail(detail string) error {
	if !t.State.CanTransitionTo(StateFailed) {
		return t.invalidTransition(StateFailed)
	}
	t.State = StateFailed
	t.ErrorDetail = detail
	return nil
}

func (t *Transaction) invalidTransition(next TransactionState) error {
	return WrapError(ErrorCodeTxnInvalidState, "invalid state transition",
		fmt.Errorf("%s -> %s", t.State, next)).
		WithDetail("checkout_request_id", t.CheckoutRequestID)
}

// Confirmation is a gateway payment outcome, normalized from the callback payload
type Confirmation struct {
	TransactionDate   time.Time
	Amount            decimal.Decimal
	ResultCode        string
	ResultDesc        string
	MerchantRequestID string
	CheckoutRequestID string
	ReceiptNumber     string
	PhoneNumber       string
	Success           bool
}
