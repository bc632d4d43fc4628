package secrets

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/kevin07696/mpesa-bridge/internal/adapters/ports"
	"go.uber.org/zap"
)

// VaultConfig configures the HashiCorp Vault KV backend
type VaultConfig struct {
	Address string

	// AuthMethod is "token" (default) or "approle".
	AuthMethod string
	Token      string
	RoleID     string
	SecretID   string

	Namespace string

	// MountPath of the KV engine, "secret" by default.
	MountPath string
	// KVVersion is "v1" or "v2".
	KVVersion string

	CacheTTL    time.Duration
	EnableCache bool
}

// DefaultVaultConfig returns default configuration for Vault adapter
func DefaultVaultConfig(address string) *VaultConfig {
	return &VaultConfig{
		Address:     address,
		AuthMethod:  "token",
		MountPath:   "secret",
		KVVersion:   "v2",
		CacheTTL:    5 * time.Minute,
		EnableCache: true,
	}
}

// kvGetter is satisfied by both *vault.KVv1 and *vault.KVv2
type kvGetter interface {
	Get(ctx context.Context, secretPath string) (*vault.KVSecret, error)
}

type vaultAdapter struct {
	kv     kvGetter
	logger *zap.Logger
	cache  *secretCache
}

// NewVaultAdapter logs in to Vault and returns an adapter reading from the
// configured KV mount.
func NewVaultAdapter(ctx context.Context, cfg *VaultConfig, logger *zap.Logger) (ports.SecretManagerAdapter, error) {
	clientCfg := vault.DefaultConfig()
	clientCfg.Address = cfg.Address

	client, err := vault.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create Vault client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	if err := vaultLogin(ctx, client, cfg); err != nil {
		return nil, fmt.Errorf("vault login (%s): %w", cfg.AuthMethod, err)
	}

	var kv kvGetter
	switch cfg.KVVersion {
	case "v1":
		kv = client.KVv1(cfg.MountPath)
	case "v2", "":
		kv = client.KVv2(cfg.MountPath)
	default:
		return nil, fmt.Errorf("unsupported KV version %q", cfg.KVVersion)
	}

	logger.Info("Vault backend ready",
		zap.String("address", cfg.Address),
		zap.String("mount", cfg.MountPath),
		zap.String("kv_version", cfg.KVVersion),
	)

	return newVaultAdapter(kv, cfg, logger), nil
}

func newVaultAdapter(kv kvGetter, cfg *VaultConfig, logger *zap.Logger) *vaultAdapter {
	return &vaultAdapter{
		kv:     kv,
		logger: logger,
		cache:  newSecretCache(cfg.EnableCache, cfg.CacheTTL),
	}
}

func vaultLogin(ctx context.Context, client *vault.Client, cfg *VaultConfig) error {
	if cfg.AuthMethod == "approle" {
		if cfg.RoleID == "" || cfg.SecretID == "" {
			return errors.New("role_id and secret_id are required")
		}
		resp, err := client.Logical().WriteWithContext(ctx, "auth/approle/login", map[string]interface{}{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
		if err != nil {
			return err
		}
		if resp == nil || resp.Auth == nil {
			return errors.New("login response carried no auth block")
		}
		client.SetToken(resp.Auth.ClientToken)
		return nil
	}

	if cfg.AuthMethod != "token" && cfg.AuthMethod != "" {
		return fmt.Errorf("unsupported auth method %q", cfg.AuthMethod)
	}
	if cfg.Token == "" {
		return errors.New("VAULT_TOKEN is empty")
	}
	client.SetToken(cfg.Token)
	return nil
}

// GetSecret reads path from the KV mount, e.g. "mpesa-bridge/daraja_passkey"
func (a *vaultAdapter) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	return a.cache.load(ctx, path, a.logger, func(ctx context.Context) (*ports.Secret, error) {
		kvSecret, err := a.kv.Get(ctx, path)
		if errors.Is(err, vault.ErrSecretNotFound) {
			return nil, fmt.Errorf("%w: %s", ports.ErrSecretNotFound, path)
		}
		if err != nil {
			a.logger.Error("Vault read failed", zap.String("path", path), zap.Error(err))
			return nil, fmt.Errorf("read %s from Vault: %w", path, err)
		}

		secret, err := secretFromKV(kvSecret)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return secret, nil
	})
}

// secretFromKV takes the credential from the "value" field, or from the
// alphabetically first non-empty string field when "value" is absent. The
// remaining string fields become metadata.
func secretFromKV(kv *vault.KVSecret) (*ports.Secret, error) {
	if kv == nil || len(kv.Data) == 0 {
		return nil, errors.New("secret has no data")
	}

	valueKey := "value"
	if s, _ := kv.Data[valueKey].(string); s == "" {
		valueKey = ""
		keys := make([]string, 0, len(kv.Data))
		for k := range kv.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, _ := kv.Data[k].(string); s != "" {
				valueKey = k
				break
			}
		}
	}
	if valueKey == "" {
		return nil, errors.New("secret has no string value")
	}

	secret := &ports.Secret{
		Value:    kv.Data[valueKey].(string),
		Version:  "1",
		Metadata: make(map[string]string),
	}
	for k, v := range kv.Data {
		if s, ok := v.(string); ok && k != valueKey {
			secret.Metadata[k] = s
		}
	}
	if meta := kv.VersionMetadata; meta != nil {
		secret.Version = strconv.Itoa(meta.Version)
		if !meta.CreatedTime.IsZero() {
			secret.CreatedAt = meta.CreatedTime.UTC().Format(time.RFC3339)
		}
	}
	return secret, nil
}
