// Package payment exposes the push payment flow over JSON/HTTP: initiation
// by the storefront, confirmation callbacks from the gateway, status polling
// and pre-payment cart validation.
package payment

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kevin07696/mpesa-bridge/internal/domain"
	svcports "github.com/kevin07696/mpesa-bridge/internal/services/ports"
	pkghttp "github.com/kevin07696/mpesa-bridge/pkg/http"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// maxBodyBytes bounds every JSON request body. Carts and gateway
	// callbacks are a few KB at most.
	maxBodyBytes = 64 << 10

	msgPushSent       = "Payment request sent to your phone"
	msgInitiateFailed = "Failed to initiate payment. Please try again."
	msgStatusFailed   = "Failed to check payment status"
	msgCartValid      = "Cart validated successfully"
	msgCartFailed     = "Failed to validate cart"
	msgInvalidJSON    = "Invalid JSON body"
)

// Handler implements the payment HTTP endpoints
type Handler struct {
	service svcports.PaymentService
	logger  *zap.Logger
}

// NewHandler creates a new payment handler
func NewHandler(service svcports.PaymentService, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

type initiateResponse struct {
	Success           bool     `json:"success"`
	Message           string   `json:"message,omitempty"`
	Errors            []string `json:"errors,omitempty"`
	CheckoutRequestID string   `json:"checkoutRequestId,omitempty"`
	OrderRef          string   `json:"orderRef,omitempty"`
}

// Initiate handles POST /payments/initiate
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warn("Rejected initiate body", zap.Error(err))
		pkghttp.WriteJSON(w, http.StatusBadRequest, initiateResponse{Errors: []string{msgInvalidJSON}})
		return
	}

	result, err := h.service.Initiate(r.Context(), &req)
	if err != nil {
		var verrs *domain.ValidationErrors
		if errors.As(err, &verrs) {
			pkghttp.WriteJSON(w, http.StatusBadRequest, initiateResponse{Errors: verrs.Messages})
			return
		}

		// The service already logged the raw gateway detail
		h.logger.Error("Payment initiation failed",
			zap.String("code", string(domain.GetErrorCode(err))),
			zap.Error(err),
		)
		pkghttp.WriteJSON(w, http.StatusInternalServerError, initiateResponse{Message: msgInitiateFailed})
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, initiateResponse{
		Success:           true,
		Message:           msgPushSent,
		CheckoutRequestID: result.CheckoutRequestID,
		OrderRef:          result.OrderReference,
	})
}

// Confirm handles the gateway's result callback. It acknowledges with 200
// whatever happened; outcomes are only logged.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Warn("Failed to read confirmation body", zap.Error(err))
		pkghttp.WriteGatewayAck(w)
		return
	}

	outcome, err := h.service.HandleConfirmation(r.Context(), payload)
	if err != nil {
		h.logger.Error("Confirmation processing failed",
			zap.String("outcome", string(outcome)),
			zap.Error(err),
		)
	} else {
		h.logger.Info("Confirmation processed", zap.String("outcome", string(outcome)))
	}

	pkghttp.WriteGatewayAck(w)
}

// Status handles GET /payments/status/{checkoutRequestId}
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("checkoutRequestId")

	view, err := h.service.GetStatus(r.Context(), id)
	if err != nil {
		h.logger.Error("Status check failed",
			zap.String("checkout_request_id", id),
			zap.Error(err),
		)
		pkghttp.WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"status":  "error",
			"message": msgStatusFailed,
		})
		return
	}

	code := http.StatusOK
	if view.Status == domain.StatusNotFound {
		code = http.StatusNotFound
	}
	pkghttp.WriteJSON(w, code, view)
}

type validateCartRequest struct {
	TotalAmount *decimal.Decimal  `json:"totalAmount"`
	CartItems   []domain.CartItem `json:"cartItems"`
}

type validateCartResponse struct {
	Valid     bool             `json:"valid"`
	Message   string           `json:"message,omitempty"`
	Error     string           `json:"error,omitempty"`
	VariantID domain.VariantID `json:"variantId,omitempty"`
}

// ValidateCart handles POST /payments/validate-cart
func (h *Handler) ValidateCart(w http.ResponseWriter, r *http.Request) {
	var req validateCartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteJSON(w, http.StatusBadRequest, validateCartResponse{Error: msgInvalidJSON})
		return
	}

	err := h.service.ValidateCart(r.Context(), req.CartItems, req.TotalAmount)
	if err != nil {
		var cartErr *domain.CartError
		if errors.As(err, &cartErr) {
			pkghttp.WriteJSON(w, http.StatusBadRequest, validateCartResponse{
				Error:     cartErr.Message,
				VariantID: cartErr.VariantID,
			})
			return
		}

		h.logger.Error("Cart validation failed", zap.Error(err))
		pkghttp.WriteJSON(w, http.StatusInternalServerError, validateCartResponse{Error: msgCartFailed})
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, validateCartResponse{Valid: true, Message: msgCartValid})
}

// NotFound answers unmatched routes with a JSON body
func NotFound(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusNotFound, map[string]string{
		"error": "Not Found",
		"path":  r.URL.Path,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}
