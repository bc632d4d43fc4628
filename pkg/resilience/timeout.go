package resilience

import (
	"context"
	"time"
)

// TimeoutConfig defines timeout values for the bridge's timeout hierarchy
//
// Timeout Hierarchy (from outermost to innermost):
//
//	HTTP Handler (60s)
//	  ↓
//	Confirmation processing (45s - callback + order creation)
//	  ↓
//	External API (30s - Daraja / Shopify single call)
//	  ↓
//	Status query fallback (10s)
//
// Each layer completes before its parent times out.
type TimeoutConfig struct {
	HTTPHandler  time.Duration
	Confirmation time.Duration
	ExternalAPI  time.Duration
	StatusQuery  time.Duration
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:  60 * time.Second,
		Confirmation: 45 * time.Second,
		ExternalAPI:  30 * time.Second,
		StatusQuery:  10 * time.Second,
	}
}

// TestTimeoutConfig returns shorter timeouts for testing
func TestTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:  5 * time.Second,
		Confirmation: 4 * time.Second,
		ExternalAPI:  2 * time.Second,
		StatusQuery:  1 * time.Second,
	}
}

// WithExternalAPI returns a copy with the outbound call budget replaced.
// Confirmation is widened when needed so it stays above the outbound budget.
func (tc *TimeoutConfig) WithExternalAPI(d time.Duration) *TimeoutConfig {
	cp := *tc
	if d <= 0 {
		return &cp
	}
	cp.ExternalAPI = d
	if cp.Confirmation <= d {
		cp.Confirmation = d + d/2
	}
	if cp.HTTPHandler <= cp.Confirmation {
		cp.HTTPHandler = cp.Confirmation + 15*time.Second
	}
	return &cp
}

// HandlerContext creates a context with timeout for HTTP handlers
func (tc *TimeoutConfig) HandlerContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.HTTPHandler)
}

// ConfirmationContext creates a context for processing a gateway callback.
// It is detached from the parent's cancellation so a gateway disconnect cannot
// abort order creation half way; values (request id, logger fields) survive.
func (tc *TimeoutConfig) ConfirmationContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), tc.Confirmation)
}

// ExternalAPIContext creates a context for a single outbound API call
func (tc *TimeoutConfig) ExternalAPIContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.ExternalAPI)
}

// StatusQueryContext creates a context for the active status query fallback
func (tc *TimeoutConfig) StatusQueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.StatusQuery)
}
