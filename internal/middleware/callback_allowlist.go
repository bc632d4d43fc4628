package middleware

import (
	"net"
	"net/http"

	pkghttp "github.com/kevin07696/mpesa-bridge/pkg/http"
	pkgmiddleware "github.com/kevin07696/mpesa-bridge/pkg/middleware"
	"go.uber.org/zap"
)

// CallbackAllowlist restricts the gateway confirmation endpoint to the
// gateway's published source addresses. An empty list disables the check.
type CallbackAllowlist struct {
	allowed    map[string]bool
	trustProxy bool
	logger     *zap.Logger
}

// NewCallbackAllowlist creates the allow-list; entries that are not valid
// IP addresses are logged and skipped.
func NewCallbackAllowlist(ips []string, trustProxy bool, logger *zap.Logger) *CallbackAllowlist {
	allowed := make(map[string]bool, len(ips))
	for _, ip := range ips {
		parsed := net.ParseIP(ip)
		if parsed == nil {
			logger.Warn("Ignoring invalid callback allow-list entry", zap.String("ip", ip))
			continue
		}
		allowed[parsed.String()] = true
	}

	if len(allowed) > 0 {
		logger.Info("Callback IP allow-list loaded", zap.Int("count", len(allowed)))
	}

	return &CallbackAllowlist{
		allowed:    allowed,
		trustProxy: trustProxy,
		logger:     logger,
	}
}

// Enabled reports whether any address is configured
func (a *CallbackAllowlist) Enabled() bool {
	return len(a.allowed) > 0
}

// Middleware drops callbacks from unlisted addresses: the payload never
// reaches the handler, but the sender still gets the usual acknowledgement
// so it does not retry. Loopback is always allowed for local tunnels.
func (a *CallbackAllowlist) Middleware(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := pkgmiddleware.ClientIP(r, a.trustProxy)
		if !a.isAllowed(ip) {
			a.logger.Warn("Discarding gateway callback from unlisted IP",
				zap.String("ip", ip),
				zap.String("path", r.URL.Path),
			)
			pkghttp.WriteGatewayAck(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *CallbackAllowlist) isAllowed(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	if parsed.IsLoopback() {
		return true
	}
	return a.allowed[parsed.String()]
}
