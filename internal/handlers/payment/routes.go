package payment

import "net/http"

// RegisterRoutes mounts the payment endpoints under /payments and under the
// /api/mpesa paths older storefront themes still call. storefront wraps the
// browser-facing routes (rate limiting); callbackGuard wraps only the
// gateway confirmation routes, which are never throttled.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, storefront, callbackGuard func(http.Handler) http.Handler) {
	initiate := storefront(http.HandlerFunc(h.Initiate))
	status := storefront(http.HandlerFunc(h.Status))
	validateCart := storefront(http.HandlerFunc(h.ValidateCart))
	confirm := callbackGuard(http.HandlerFunc(h.Confirm))

	mux.Handle("POST /payments/initiate", initiate)
	mux.Handle("POST /payments/confirm", confirm)
	mux.Handle("GET /payments/status/{checkoutRequestId}", status)
	mux.Handle("POST /payments/validate-cart", validateCart)

	mux.Handle("POST /api/mpesa/stkpush", initiate)
	mux.Handle("POST /api/mpesa/callback", confirm)
	mux.Handle("GET /api/mpesa/status/{checkoutRequestId}", status)
	mux.Handle("POST /api/mpesa/validate-cart", validateCart)

	mux.HandleFunc("/", NotFound)
}
