package secrets

import (
	"context"
	"sync"
	"time"

	"github.com/kevin07696/mpesa-bridge/internal/adapters/ports"
	"go.uber.org/zap"
)

// secretCache holds fetched secrets for ttl. A disabled cache stores nothing.
// Credentials are resolved once at startup, so entries mostly serve repeated
// lookups of the same name across config fields.
type secretCache struct {
	mu      sync.Mutex
	byPath  map[string]cachedSecret
	now     func() time.Time
	ttl     time.Duration
	enabled bool
}

type cachedSecret struct {
	secret  *ports.Secret
	fetched time.Time
}

func newSecretCache(enabled bool, ttl time.Duration) *secretCache {
	return &secretCache{
		byPath:  make(map[string]cachedSecret),
		now:     time.Now,
		ttl:     ttl,
		enabled: enabled,
	}
}

func (c *secretCache) get(path string) *ports.Secret {
	if !c.enabled {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	hit, ok := c.byPath[path]
	if !ok {
		return nil
	}
	if c.now().Sub(hit.fetched) > c.ttl {
		delete(c.byPath, path)
		return nil
	}
	return hit.secret
}

func (c *secretCache) set(path string, secret *ports.Secret) {
	if !c.enabled {
		return
	}

	c.mu.Lock()
	c.byPath[path] = cachedSecret{secret: secret, fetched: c.now()}
	c.mu.Unlock()
}

// load returns the cached secret for path or calls fetch and caches a
// successful result. Errors are never cached.
func (c *secretCache) load(ctx context.Context, path string, logger *zap.Logger, fetch func(context.Context) (*ports.Secret, error)) (*ports.Secret, error) {
	if hit := c.get(path); hit != nil {
		logger.Debug("Secret served from cache", zap.String("path", path))
		return hit, nil
	}

	started := time.Now()
	secret, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	logger.Info("Secret fetched",
		zap.String("path", path),
		zap.String("version", secret.Version),
		zap.Duration("elapsed", time.Since(started)),
	)
	c.set(path, secret)
	return secret, nil
}
