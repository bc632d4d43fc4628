package config

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kevin07696/mpesa-bridge/internal/adapters/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DARAJA_CONSUMER_KEY", "key")
	t.Setenv("DARAJA_CONSUMER_SECRET", "secret")
	t.Setenv("DARAJA_SHORTCODE", "174379")
	t.Setenv("DARAJA_PASSKEY", "passkey")
	t.Setenv("DARAJA_CALLBACK_URL", "https://bridge.example.com/payments/confirm")
	t.Setenv("SHOPIFY_STORE_DOMAIN", "duka.myshopify.com")
	t.Setenv("SHOPIFY_ACCESS_TOKEN", "shpat_test")
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 10*time.Minute, cfg.Core.Retention)
	assert.Equal(t, 10*time.Minute, cfg.Core.UnresolvedRetention)
	assert.Equal(t, time.Minute, cfg.Core.SweepInterval)
	assert.Equal(t, 30*time.Second, cfg.Core.OutboundTimeout)
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, SecretsEnv, cfg.Secrets.Backend)
	assert.Equal(t, "sandbox", cfg.Daraja.Environment)
	assert.Equal(t, "2024-10", cfg.Shopify.APIVersion)
	assert.False(t, cfg.IsProduction())
	assert.Empty(t, cfg.Server.CallbackAllowedIPs)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("PORT", "8080")
	t.Setenv("CORS_ORIGINS", "https://duka.co.ke, https://www.duka.co.ke,")
	t.Setenv("TRANSACTION_RETENTION", "15m")
	t.Setenv("UNRESOLVED_RETENTION", "86400")
	t.Setenv("SWEEP_INTERVAL", "0")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("TRUST_PROXY_HEADERS", "true")
	t.Setenv("CALLBACK_ALLOWED_IPS", "196.201.214.200,196.201.214.206")
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"https://duka.co.ke", "https://www.duka.co.ke"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 15*time.Minute, cfg.Core.Retention)
	assert.Equal(t, 24*time.Hour, cfg.Core.UnresolvedRetention)
	assert.Equal(t, time.Duration(0), cfg.Core.SweepInterval)
	assert.Equal(t, 2.5, cfg.Server.RateLimitRPS)
	assert.True(t, cfg.Server.TrustProxyHeaders)
	assert.Len(t, cfg.Server.CallbackAllowedIPs, 2)
	assert.Equal(t, StoreRedis, cfg.Store.Backend)
}

func TestLoadFromEnv_RejectsShortUnresolvedRetention(t *testing.T) {
	t.Setenv("TRANSACTION_RETENTION", "10m")
	t.Setenv("UNRESOLVED_RETENTION", "5m")

	_, err := LoadFromEnv()
	assert.ErrorContains(t, err, "UNRESOLVED_RETENTION")
}

func TestValidate_ListsEveryMissingName(t *testing.T) {
	cfg := &Config{
		Daraja:  DarajaConfig{Environment: "sandbox", Shortcode: "174379"},
		Store:   StoreConfig{Backend: StorePostgres},
		Secrets: SecretsConfig{Prefix: "mpesa-bridge"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	for _, name := range []string{
		"DARAJA_CONSUMER_KEY", "DARAJA_CONSUMER_SECRET", "DARAJA_PASSKEY",
		"DARAJA_CALLBACK_URL", "SHOPIFY_STORE_DOMAIN", "SHOPIFY_CLIENT_ID",
		"SHOPIFY_CLIENT_SECRET", "DATABASE_URL",
	} {
		assert.Contains(t, err.Error(), name)
	}
	assert.NotContains(t, err.Error(), "DARAJA_SHORTCODE")
}

func TestValidate_ClientCredentialsInsteadOfToken(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SHOPIFY_ACCESS_TOKEN", "")
	t.Setenv("SHOPIFY_CLIENT_ID", "client")
	t.Setenv("SHOPIFY_CLIENT_SECRET", "shhh")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
}

func TestValidate_BadEnums(t *testing.T) {
	setRequiredEnv(t)

	t.Run("store backend", func(t *testing.T) {
		t.Setenv("STORE_BACKEND", "sqlite")
		cfg, err := LoadFromEnv()
		require.NoError(t, err)
		assert.ErrorContains(t, cfg.Validate(), "STORE_BACKEND")
	})

	t.Run("daraja env", func(t *testing.T) {
		t.Setenv("DARAJA_ENV", "staging")
		cfg, err := LoadFromEnv()
		require.NoError(t, err)
		assert.ErrorContains(t, cfg.Validate(), "DARAJA_ENV")
	})
}

type mapSecrets map[string]string

func (m mapSecrets) GetSecret(_ context.Context, path string) (*ports.Secret, error) {
	v, ok := m[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrSecretNotFound, path)
	}
	return &ports.Secret{Value: v, Version: "v1"}, nil
}

type failingSecrets struct{}

func (failingSecrets) GetSecret(context.Context, string) (*ports.Secret, error) {
	return nil, errors.New("access denied")
}

func TestResolveSecrets(t *testing.T) {
	cfg := &Config{
		Daraja: DarajaConfig{
			ConsumerKey: "from-env",
			Environment: "sandbox",
		},
		Store:   StoreConfig{Backend: StoreMemory},
		Secrets: SecretsConfig{Backend: SecretsLocal, Prefix: "mpesa-bridge"},
	}
	sm := mapSecrets{
		"mpesa-bridge/daraja_consumer_key":    "from-vault",
		"mpesa-bridge/daraja_consumer_secret": "s3cret",
		"mpesa-bridge/daraja_shortcode":       "174379",
		"mpesa-bridge/daraja_passkey":         "pk",
		"mpesa-bridge/daraja_callback_url":    "https://bridge.example.com/payments/confirm",
		"mpesa-bridge/shopify_store_domain":   "duka.myshopify.com",
		"mpesa-bridge/shopify_access_token":   "shpat_x",
	}

	require.NoError(t, cfg.ResolveSecrets(context.Background(), sm, zaptest.NewLogger(t)))

	assert.Equal(t, "from-env", cfg.Daraja.ConsumerKey, "set values are never overwritten")
	assert.Equal(t, "s3cret", cfg.Daraja.ConsumerSecret)
	assert.Equal(t, "shpat_x", cfg.Shopify.AccessToken)
	assert.Empty(t, cfg.Shopify.ClientID)
	assert.NoError(t, cfg.Validate())
}

func TestResolveSecrets_BackendError(t *testing.T) {
	cfg := &Config{Secrets: SecretsConfig{Prefix: "mpesa-bridge"}}

	err := cfg.ResolveSecrets(context.Background(), failingSecrets{}, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "DARAJA_CONSUMER_KEY")
	assert.ErrorContains(t, err, "access denied")
}
