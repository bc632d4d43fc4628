package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	httputil "github.com/kevin07696/mpesa-bridge/pkg/http"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// clientLimiter tracks a token bucket and its last use
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiterConfig configures per-client rate limiting
type RateLimiterConfig struct {
	RequestsPerSecond float64
	Burst             int
	// TrustProxy keys clients by X-Forwarded-For instead of the socket address
	TrustProxy bool
	// MaxClients caps cached limiters; the least recently used is evicted
	MaxClients      int
	CleanupInterval time.Duration
}

// DefaultRateLimiterConfig allows a storefront's checkout plus status
// polling every couple of seconds with headroom.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 5,
		Burst:             20,
		MaxClients:        10000,
		CleanupInterval:   5 * time.Minute,
	}
}

// RateLimiter limits requests per client IP with periodic cleanup
type RateLimiter struct {
	limiters map[string]*clientLimiter
	mu       sync.Mutex
	cfg      RateLimiterConfig
	logger   *zap.Logger
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a rate limiter and starts its cleanup goroutine;
// call Shutdown to stop it.
func NewRateLimiter(cfg RateLimiterConfig, logger *zap.Logger) *RateLimiter {
	defaults := DefaultRateLimiterConfig()
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaults.Burst
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = defaults.MaxClients
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaults.CleanupInterval
	}

	rl := &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup removes limiters idle for a full cleanup interval
func (rl *RateLimiter) cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.cfg.CleanupInterval)
	removed := 0
	for key, l := range rl.limiters {
		if l.lastAccess.Before(cutoff) {
			delete(rl.limiters, key)
			removed++
		}
	}

	if removed > 100 {
		rl.logger.Debug("Rate limiter cleanup",
			zap.Int("removed", removed),
			zap.Int("remaining", len(rl.limiters)),
		)
	}
	return removed
}

// Shutdown stops the cleanup goroutine
func (rl *RateLimiter) Shutdown() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if l, ok := rl.limiters[key]; ok {
		l.lastAccess = now
		return l.limiter
	}

	if len(rl.limiters) >= rl.cfg.MaxClients {
		var (
			oldestKey  string
			oldestTime time.Time
		)
		for k, l := range rl.limiters {
			if oldestKey == "" || l.lastAccess.Before(oldestTime) {
				oldestKey, oldestTime = k, l.lastAccess
			}
		}
		delete(rl.limiters, oldestKey)
	}

	l := &clientLimiter{
		limiter:    rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst),
		lastAccess: now,
	}
	rl.limiters[key] = l
	return l.limiter
}

// Middleware rejects over-limit clients with 429 and a Retry-After hint
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(math.Ceil(1 / rl.cfg.RequestsPerSecond)))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r, rl.cfg.TrustProxy)
		if !rl.getLimiter(ip).Allow() {
			rl.logger.Warn("Rate limit exceeded",
				zap.String("remote_ip", ip),
				zap.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", retryAfter)
			httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
				"success": false,
				"message": "Rate limit exceeded. Please try again later.",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
