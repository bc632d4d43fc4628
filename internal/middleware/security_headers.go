// Package middleware holds the bridge-specific HTTP middleware: security
// headers, the storefront CORS allow-list and the gateway callback allow-list.
package middleware

import (
	"net/http"
)

// apiCSP blocks everything; the bridge only ever serves JSON
const apiCSP = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'"

// SecurityHeaders adds the usual hardening headers to every response.
// HSTS is only sent in production so local http:// testing keeps working.
type SecurityHeaders struct {
	production bool
}

// NewSecurityHeaders creates a new security headers middleware
func NewSecurityHeaders(production bool) *SecurityHeaders {
	return &SecurityHeaders{production: production}
}

// Middleware wraps an HTTP handler with security headers
func (sh *SecurityHeaders) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-DNS-Prefetch-Control", "off")
		h.Set("X-Download-Options", "noopen")
		h.Set("X-Permitted-Cross-Domain-Policies", "none")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		h.Set("Cross-Origin-Resource-Policy", "cross-origin")
		h.Set("Content-Security-Policy", apiCSP)
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=(), usb=()")

		if sh.production {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}
