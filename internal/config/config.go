package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kevin07696/mpesa-bridge/internal/adapters/ports"
	"go.uber.org/zap"
)

const (
	EnvironmentProduction = "production"

	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"

	SecretsEnv   = "env"
	SecretsLocal = "local"
	SecretsAWS   = "aws"
	SecretsVault = "vault"
	SecretsGCP   = "gcp"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Daraja      DarajaConfig
	Shopify     ShopifyConfig
	Core        CoreConfig
	Store       StoreConfig
	Secrets     SecretsConfig
	Logger      LoggerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port               int
	CORSOrigins        []string
	RateLimitRPS       float64
	RateLimitBurst     int
	TrustProxyHeaders  bool
	CallbackAllowedIPs []string
	ShutdownTimeout    time.Duration
}

// DarajaConfig holds the M-Pesa Daraja credentials
type DarajaConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	TillNumber     string
	Passkey        string
	CallbackURL    string
	Environment    string // sandbox or production
	BaseURL        string
}

// ShopifyConfig holds the Shopify Admin API credentials
type ShopifyConfig struct {
	StoreDomain  string
	ClientID     string
	ClientSecret string
	AccessToken  string
	APIVersion   string
}

// CoreConfig holds reconciliation timing
type CoreConfig struct {
	Retention           time.Duration
	UnresolvedRetention time.Duration
	SweepInterval       time.Duration // 0 disables the background sweeper
	OutboundTimeout     time.Duration
}

// StoreConfig selects and configures the transaction store backend
type StoreConfig struct {
	Backend       string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// SecretsConfig selects where empty credentials are resolved from
type SecretsConfig struct {
	Backend      string
	Prefix       string
	LocalPath    string
	AWSRegion    string
	VaultAddr    string
	VaultToken   string
	GCPProjectID string
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level string // debug, info, warn, error; empty picks the environment default
}

// LoadFromEnv loads configuration from environment variables.
// It does not validate credentials; call ResolveSecrets then Validate.
func LoadFromEnv() (*Config, error) {
	retention := getEnvAsDuration("TRANSACTION_RETENTION", 10*time.Minute)

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:               getEnvAsInt("PORT", 3000),
			CORSOrigins:        getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000"}),
			RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 5),
			RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),
			TrustProxyHeaders:  getEnvAsBool("TRUST_PROXY_HEADERS", false),
			CallbackAllowedIPs: getEnvAsList("CALLBACK_ALLOWED_IPS", nil),
			ShutdownTimeout:    getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Daraja: DarajaConfig{
			ConsumerKey:    os.Getenv("DARAJA_CONSUMER_KEY"),
			ConsumerSecret: os.Getenv("DARAJA_CONSUMER_SECRET"),
			Shortcode:      os.Getenv("DARAJA_SHORTCODE"),
			TillNumber:     os.Getenv("DARAJA_TILL_NO"),
			Passkey:        os.Getenv("DARAJA_PASSKEY"),
			CallbackURL:    os.Getenv("DARAJA_CALLBACK_URL"),
			Environment:    getEnv("DARAJA_ENV", "sandbox"),
			BaseURL:        os.Getenv("DARAJA_BASE_URL"),
		},
		Shopify: ShopifyConfig{
			StoreDomain:  os.Getenv("SHOPIFY_STORE_DOMAIN"),
			ClientID:     os.Getenv("SHOPIFY_CLIENT_ID"),
			ClientSecret: os.Getenv("SHOPIFY_CLIENT_SECRET"),
			AccessToken:  os.Getenv("SHOPIFY_ACCESS_TOKEN"),
			APIVersion:   getEnv("SHOPIFY_API_VERSION", "2024-10"),
		},
		Core: CoreConfig{
			Retention:           retention,
			UnresolvedRetention: getEnvAsDuration("UNRESOLVED_RETENTION", retention),
			SweepInterval:       getEnvAsDuration("SWEEP_INTERVAL", time.Minute),
			OutboundTimeout:     getEnvAsDuration("OUTBOUND_TIMEOUT", 30*time.Second),
		},
		Store: StoreConfig{
			Backend:       strings.ToLower(getEnv("STORE_BACKEND", StoreMemory)),
			DatabaseURL:   os.Getenv("DATABASE_URL"),
			RedisAddr:     os.Getenv("REDIS_ADDR"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
		},
		Secrets: SecretsConfig{
			Backend:      strings.ToLower(getEnv("SECRETS_BACKEND", SecretsEnv)),
			Prefix:       getEnv("SECRETS_PREFIX", "mpesa-bridge"),
			LocalPath:    getEnv("SECRETS_LOCAL_PATH", "./secrets"),
			AWSRegion:    getEnv("AWS_REGION", "eu-west-1"),
			VaultAddr:    os.Getenv("VAULT_ADDR"),
			VaultToken:   os.Getenv("VAULT_TOKEN"),
			GCPProjectID: os.Getenv("GCP_PROJECT_ID"),
		},
		Logger: LoggerConfig{
			Level: os.Getenv("LOG_LEVEL"),
		},
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("PORT out of range: %d", cfg.Server.Port)
	}
	if cfg.Core.Retention <= 0 {
		return nil, fmt.Errorf("TRANSACTION_RETENTION must be positive")
	}
	if cfg.Core.UnresolvedRetention < cfg.Core.Retention {
		return nil, fmt.Errorf("UNRESOLVED_RETENTION must not be shorter than TRANSACTION_RETENTION")
	}

	return cfg, nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvironmentProduction
}

// credential ties an env name to the field it fills
type credential struct {
	name  string
	value *string
}

func (c *Config) credentials() []credential {
	return []credential{
		{"DARAJA_CONSUMER_KEY", &c.Daraja.ConsumerKey},
		{"DARAJA_CONSUMER_SECRET", &c.Daraja.ConsumerSecret},
		{"DARAJA_SHORTCODE", &c.Daraja.Shortcode},
		{"DARAJA_PASSKEY", &c.Daraja.Passkey},
		{"DARAJA_CALLBACK_URL", &c.Daraja.CallbackURL},
		{"SHOPIFY_STORE_DOMAIN", &c.Shopify.StoreDomain},
		{"SHOPIFY_CLIENT_ID", &c.Shopify.ClientID},
		{"SHOPIFY_CLIENT_SECRET", &c.Shopify.ClientSecret},
		{"SHOPIFY_ACCESS_TOKEN", &c.Shopify.AccessToken},
		{"DATABASE_URL", &c.Store.DatabaseURL},
		{"REDIS_PASSWORD", &c.Store.RedisPassword},
	}
}

// ResolveSecrets fills every empty credential from
// <prefix>/<env_name_lower> in sm. Secrets the backend does not hold are
// left empty for Validate to report; any other backend error aborts.
func (c *Config) ResolveSecrets(ctx context.Context, sm ports.SecretManagerAdapter, logger *zap.Logger) error {
	resolved := 0
	for _, cred := range c.credentials() {
		if *cred.value != "" {
			continue
		}

		path := c.Secrets.Prefix + "/" + strings.ToLower(cred.name)
		secret, err := sm.GetSecret(ctx, path)
		if errors.Is(err, ports.ErrSecretNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("resolve %s: %w", cred.name, err)
		}

		*cred.value = secret.Value
		resolved++
		logger.Debug("Credential resolved from secret manager",
			zap.String("name", cred.name),
			zap.String("version", secret.Version),
		)
	}

	logger.Info("Secrets resolved",
		zap.String("backend", c.Secrets.Backend),
		zap.Int("resolved", resolved),
	)
	return nil
}

// Validate reports every missing or invalid setting in one error
func (c *Config) Validate() error {
	var missing []string
	need := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	need("DARAJA_CONSUMER_KEY", c.Daraja.ConsumerKey)
	need("DARAJA_CONSUMER_SECRET", c.Daraja.ConsumerSecret)
	need("DARAJA_SHORTCODE", c.Daraja.Shortcode)
	need("DARAJA_PASSKEY", c.Daraja.Passkey)
	need("DARAJA_CALLBACK_URL", c.Daraja.CallbackURL)
	need("SHOPIFY_STORE_DOMAIN", c.Shopify.StoreDomain)

	if c.Shopify.AccessToken == "" {
		need("SHOPIFY_CLIENT_ID", c.Shopify.ClientID)
		need("SHOPIFY_CLIENT_SECRET", c.Shopify.ClientSecret)
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StorePostgres:
		need("DATABASE_URL", c.Store.DatabaseURL)
	case StoreRedis:
		need("REDIS_ADDR", c.Store.RedisAddr)
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.Daraja.Environment != "sandbox" && c.Daraja.Environment != EnvironmentProduction {
		return fmt.Errorf("DARAJA_ENV must be sandbox or production, got %q", c.Daraja.Environment)
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("90s") or bare seconds ("90")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
