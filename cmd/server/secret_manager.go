package main

import (
	"context"
	"fmt"

	"github.com/kevin07696/mpesa-bridge/internal/adapters/ports"
	"github.com/kevin07696/mpesa-bridge/internal/adapters/secrets"
	"github.com/kevin07696/mpesa-bridge/internal/config"
	"go.uber.org/zap"
)

// noClose is the closer for backends holding no connection
func noClose() error { return nil }

// initSecretManager builds the secret manager selected by SECRETS_BACKEND,
// plus a closer to call once startup resolution is done. It returns a nil
// manager for the env backend, where credentials come only from the
// environment.
//
// Environment Variables:
//   - SECRETS_BACKEND: "env", "local", "aws", "vault" or "gcp" (default: env)
//   - SECRETS_LOCAL_PATH: directory of secret files (local)
//   - AWS_REGION: region of the secrets (aws)
//   - VAULT_ADDR, VAULT_TOKEN: server and token (vault)
//   - GCP_PROJECT_ID: project holding the secrets (gcp)
func initSecretManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.SecretManagerAdapter, func() error, error) {
	switch cfg.Secrets.Backend {
	case config.SecretsEnv, "":
		return nil, noClose, nil

	case config.SecretsLocal:
		if cfg.IsProduction() {
			logger.Warn("Using LOCAL secret manager in production",
				zap.String("path", cfg.Secrets.LocalPath),
			)
		}
		return secrets.NewLocalSecretManager(cfg.Secrets.LocalPath, logger), noClose, nil

	case config.SecretsAWS:
		sm, err := secrets.NewAWSSecretsManagerAdapter(ctx, secrets.DefaultAWSSecretsManagerConfig(cfg.Secrets.AWSRegion), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init AWS Secrets Manager: %w", err)
		}
		return sm, noClose, nil

	case config.SecretsVault:
		if cfg.Secrets.VaultAddr == "" {
			return nil, nil, fmt.Errorf("VAULT_ADDR is required when SECRETS_BACKEND=vault")
		}
		vaultCfg := secrets.DefaultVaultConfig(cfg.Secrets.VaultAddr)
		vaultCfg.Token = cfg.Secrets.VaultToken
		sm, err := secrets.NewVaultAdapter(ctx, vaultCfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init Vault: %w", err)
		}
		return sm, noClose, nil

	case config.SecretsGCP:
		sm, closeFn, err := secrets.NewGCPSecretManager(ctx, secrets.DefaultGCPSecretManagerConfig(cfg.Secrets.GCPProjectID), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init GCP Secret Manager: %w", err)
		}
		return sm, closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unknown SECRETS_BACKEND %q", cfg.Secrets.Backend)
	}
}
