package domain

import "github.com/shopspring/decimal"

// CheckoutRequest is a storefront's request to start a push payment
type CheckoutRequest struct {
	Shipping  *ShippingAddress `json:"shipping"`
	Amount    *decimal.Decimal `json:"amount"`
	Phone     string           `json:"phone"`
	Email     string           `json:"email,omitempty"`
	CartToken string           `json:"cartToken,omitempty"`
	CartItems []CartItem       `json:"cartItems"`
}

// InitiateResult is what the caller needs to poll for the outcome
type InitiateResult struct {
	CheckoutRequestID string
	OrderReference    string
}

// StatusKind is the caller-facing payment status
type StatusKind string

const (
	StatusPending    StatusKind = "pending"
	StatusProcessing StatusKind = "processing"
	StatusCompleted  StatusKind = "completed"
	StatusFailed     StatusKind = "failed"
	StatusOrderError StatusKind = "order_error"
	StatusNotFound   StatusKind = "not_found"
)

// StatusView is the read model returned to a polling client
type StatusView struct {
	Success            bool       `json:"success"`
	Status             StatusKind `json:"status"`
	Message            string     `json:"message"`
	OrderReference     string     `json:"orderRef,omitempty"`
	OrderNumber        string     `json:"orderNumber,omitempty"`
	OrderStatusURL     string     `json:"orderStatusUrl,omitempty"`
	MpesaReceiptNumber string     `json:"mpesaReceiptNumber,omitempty"`
}

// PushRequest asks the gateway to prompt a customer's handset
type PushRequest struct {
	Phone       string // normalized 254XXXXXXXXX
	Reference   string
	Description string
	Amount      int64
}

// PushResult carries the gateway's correlation ids for an accepted push
type PushResult struct {
	CheckoutRequestID   string
	MerchantRequestID   string
	ResponseDescription string
}

// GatewayStatus is the live result of an active status query
type GatewayStatus struct {
	ResultCode string
	ResultDesc string
}

// InventoryStatus reports whether a variant can be sold
type InventoryStatus struct {
	Available bool
	Quantity  int
}

// ConfirmationOutcome says what a confirmation callback did
type ConfirmationOutcome string

const (
	OutcomeCompleted   ConfirmationOutcome = "completed"
	OutcomeFailed      ConfirmationOutcome = "failed"
	OutcomeOrderFailed ConfirmationOutcome = "order_failed"
	OutcomeDuplicate   ConfirmationOutcome = "duplicate"
	OutcomeUnknown     ConfirmationOutcome = "unknown_transaction"
	OutcomeMalformed   ConfirmationOutcome = "malformed"
	OutcomeStoreError  ConfirmationOutcome = "store_error"
)

// CartError rejects a cart before payment
type CartError struct {
	Message   string
	VariantID VariantID
}

func (e *CartError) Error() string {
	if e.VariantID != "" {
		return e.Message + ": " + string(e.VariantID)
	}
	return e.Message
}
