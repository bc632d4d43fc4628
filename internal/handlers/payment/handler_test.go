package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kevin07696/mpesa-bridge/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) Initiate(ctx context.Context, req *domain.CheckoutRequest) (*domain.InitiateResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.InitiateResult), args.Error(1)
}

func (m *MockPaymentService) HandleConfirmation(ctx context.Context, payload []byte) (domain.ConfirmationOutcome, error) {
	args := m.Called(ctx, payload)
	return args.Get(0).(domain.ConfirmationOutcome), args.Error(1)
}

func (m *MockPaymentService) GetStatus(ctx context.Context, checkoutRequestID string) (*domain.StatusView, error) {
	args := m.Called(ctx, checkoutRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StatusView), args.Error(1)
}

func (m *MockPaymentService) ValidateCart(ctx context.Context, items []domain.CartItem, totalAmount *decimal.Decimal) error {
	args := m.Called(ctx, items, totalAmount)
	return args.Error(0)
}

func passThrough(next http.Handler) http.Handler { return next }

func setup(t *testing.T) (*MockPaymentService, *http.ServeMux) {
	t.Helper()
	svc := new(MockPaymentService)
	t.Cleanup(func() { svc.AssertExpectations(t) })

	mux := http.NewServeMux()
	NewHandler(svc, zaptest.NewLogger(t)).RegisterRoutes(mux, passThrough, passThrough)
	return svc, mux
}

func serve(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

const checkoutBody = `{
	"phone": "0712345678",
	"shipping": {"fullName": "Jane Wanjiku", "address": "Moi Avenue 12", "city": "Nairobi", "county": "nairobi"},
	"cartItems": [{"variant_id": 4412, "quantity": 2}],
	"amount": 1500
}`

func TestInitiate(t *testing.T) {
	for _, path := range []string{"/payments/initiate", "/api/mpesa/stkpush"} {
		t.Run(path, func(t *testing.T) {
			svc, mux := setup(t)
			svc.On("Initiate", mock.Anything, mock.MatchedBy(func(req *domain.CheckoutRequest) bool {
				return req.Phone == "0712345678" &&
					len(req.CartItems) == 1 &&
					req.CartItems[0].VariantID == "4412" &&
					req.Amount != nil && req.Amount.Equal(decimal.NewFromInt(1500))
			})).Return(&domain.InitiateResult{
				CheckoutRequestID: "ws_CO_123",
				OrderReference:    "ORDM1ABC",
			}, nil).Once()

			rec := serve(mux, http.MethodPost, path, checkoutBody)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{
				"success": true,
				"message": "Payment request sent to your phone",
				"checkoutRequestId": "ws_CO_123",
				"orderRef": "ORDM1ABC"
			}`, rec.Body.String())
		})
	}
}

func TestInitiate_ValidationErrors(t *testing.T) {
	svc, mux := setup(t)
	verrs := &domain.ValidationErrors{}
	verrs.Add("Invalid phone number")
	verrs.Add("Amount must be greater than 0")
	svc.On("Initiate", mock.Anything, mock.Anything).Return(nil, verrs).Once()

	rec := serve(mux, http.MethodPost, "/payments/initiate", checkoutBody)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"success": false, "errors": ["Invalid phone number", "Amount must be greater than 0"]}`, rec.Body.String())
}

func TestInitiate_GatewayErrorHidesDetail(t *testing.T) {
	svc, mux := setup(t)
	svc.On("Initiate", mock.Anything, mock.Anything).
		Return(nil, domain.WrapError(domain.ErrorCodeGatewayError, "push rejected", errors.New("Bad Request - Invalid PhoneNumber"))).Once()

	rec := serve(mux, http.MethodPost, "/payments/initiate", checkoutBody)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success": false, "message": "Failed to initiate payment. Please try again."}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "PhoneNumber")
}

func TestInitiate_InvalidJSON(t *testing.T) {
	_, mux := setup(t)

	rec := serve(mux, http.MethodPost, "/payments/initiate", `{"phone":`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"success": false, "errors": ["Invalid JSON body"]}`, rec.Body.String())
}

func TestInitiate_BodyTooLarge(t *testing.T) {
	_, mux := setup(t)

	big := `{"phone":"` + strings.Repeat("7", maxBodyBytes) + `"}`
	rec := serve(mux, http.MethodPost, "/payments/initiate", big)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfirm_AlwaysAcknowledges(t *testing.T) {
	payload := `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_123","ResultCode":0}}}`

	tests := []struct {
		name    string
		path    string
		outcome domain.ConfirmationOutcome
		err     error
	}{
		{name: "completed", path: "/payments/confirm", outcome: domain.OutcomeCompleted},
		{name: "unknown", path: "/payments/confirm", outcome: domain.OutcomeUnknown},
		{name: "store error", path: "/payments/confirm", outcome: domain.OutcomeStoreError, err: domain.ErrStoreError},
		{name: "legacy path", path: "/api/mpesa/callback", outcome: domain.OutcomeDuplicate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mux := setup(t)
			svc.On("HandleConfirmation", mock.Anything, []byte(payload)).Return(tt.outcome, tt.err).Once()

			rec := serve(mux, http.MethodPost, tt.path, payload)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"ResultCode": 0, "ResultDesc": "Accepted"}`, rec.Body.String())
		})
	}
}

func TestConfirm_Guarded(t *testing.T) {
	svc := new(MockPaymentService)
	mux := http.NewServeMux()
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})
	}
	NewHandler(svc, zaptest.NewLogger(t)).RegisterRoutes(mux, passThrough, deny)

	for _, path := range []string{"/payments/confirm", "/api/mpesa/callback"} {
		rec := serve(mux, http.MethodPost, path, `{}`)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}

	svc.AssertNotCalled(t, "HandleConfirmation", mock.Anything, mock.Anything)
}

func TestStorefrontWrapsBrowserRoutesOnly(t *testing.T) {
	svc := new(MockPaymentService)
	svc.On("HandleConfirmation", mock.Anything, mock.Anything).Return(domain.OutcomeUnknown, nil)
	mux := http.NewServeMux()
	throttle := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	NewHandler(svc, zaptest.NewLogger(t)).RegisterRoutes(mux, throttle, passThrough)

	assert.Equal(t, http.StatusTooManyRequests, serve(mux, http.MethodPost, "/payments/initiate", checkoutBody).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(mux, http.MethodGet, "/payments/status/ws_CO_1", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(mux, http.MethodPost, "/api/mpesa/validate-cart", "{}").Code)
	assert.Equal(t, http.StatusOK, serve(mux, http.MethodPost, "/payments/confirm", "{}").Code)
}

func TestStatus(t *testing.T) {
	t.Run("completed", func(t *testing.T) {
		svc, mux := setup(t)
		svc.On("GetStatus", mock.Anything, "ws_CO_123").Return(&domain.StatusView{
			Success:            true,
			Status:             domain.StatusCompleted,
			Message:            "Payment successful",
			OrderReference:     "ORDM1ABC",
			OrderNumber:        "#1001",
			OrderStatusURL:     "https://shop.example.com/orders/abc",
			MpesaReceiptNumber: "QKT1ABC2DE",
		}, nil).Once()

		rec := serve(mux, http.MethodGet, "/payments/status/ws_CO_123", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "completed", body["status"])
		assert.Equal(t, "#1001", body["orderNumber"])
		assert.Equal(t, "QKT1ABC2DE", body["mpesaReceiptNumber"])
	})

	t.Run("not found", func(t *testing.T) {
		svc, mux := setup(t)
		svc.On("GetStatus", mock.Anything, "ws_CO_missing").Return(&domain.StatusView{
			Status:  domain.StatusNotFound,
			Message: "Transaction not found",
		}, nil).Once()

		rec := serve(mux, http.MethodGet, "/api/mpesa/status/ws_CO_missing", "")

		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"success": false, "status": "not_found", "message": "Transaction not found"}`, rec.Body.String())
	})

	t.Run("store error", func(t *testing.T) {
		svc, mux := setup(t)
		svc.On("GetStatus", mock.Anything, "ws_CO_123").Return(nil, domain.ErrStoreError).Once()

		rec := serve(mux, http.MethodGet, "/payments/status/ws_CO_123", "")

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"success": false, "status": "error", "message": "Failed to check payment status"}`, rec.Body.String())
	})
}

func TestValidateCart(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		svc, mux := setup(t)
		svc.On("ValidateCart", mock.Anything, mock.Anything, mock.MatchedBy(func(total *decimal.Decimal) bool {
			return total != nil && total.Equal(decimal.RequireFromString("2499.50"))
		})).Return(nil).Once()

		rec := serve(mux, http.MethodPost, "/payments/validate-cart",
			`{"cartItems":[{"title":"Kikoy","quantity":1,"price":"2499.50"}],"totalAmount":2499.50}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"valid": true, "message": "Cart validated successfully"}`, rec.Body.String())
	})

	t.Run("out of stock", func(t *testing.T) {
		svc, mux := setup(t)
		svc.On("ValidateCart", mock.Anything, mock.Anything, (*decimal.Decimal)(nil)).
			Return(&domain.CartError{Message: "Item out of stock", VariantID: "4412"}).Once()

		rec := serve(mux, http.MethodPost, "/api/mpesa/validate-cart", `{"cartItems":[{"variant_id":4412,"quantity":3}]}`)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"valid": false, "error": "Item out of stock", "variantId": "4412"}`, rec.Body.String())
	})

	t.Run("unexpected error", func(t *testing.T) {
		svc, mux := setup(t)
		svc.On("ValidateCart", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("boom")).Once()

		rec := serve(mux, http.MethodPost, "/payments/validate-cart", `{"cartItems":[{"title":"Kikoy","quantity":1}]}`)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"valid": false, "error": "Failed to validate cart"}`, rec.Body.String())
	})

	t.Run("invalid json", func(t *testing.T) {
		_, mux := setup(t)

		rec := serve(mux, http.MethodPost, "/payments/validate-cart", `not json`)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"valid": false, "error": "Invalid JSON body"}`, rec.Body.String())
	})
}

func TestNotFound(t *testing.T) {
	_, mux := setup(t)

	rec := serve(mux, http.MethodGet, "/nope", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error": "Not Found", "path": "/nope"}`, rec.Body.String())
}
