package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/kevin07696/mpesa-bridge/internal/adapters/ports"
	"go.uber.org/zap"
)

// AWSSecretsManagerConfig configures the AWS Secrets Manager backend.
// Credentials come from the default provider chain.
type AWSSecretsManagerConfig struct {
	Region string
	// Profile selects a shared-config profile, for local runs.
	Profile string
	// Endpoint overrides the service URL (LocalStack).
	Endpoint string

	CacheTTL    time.Duration
	EnableCache bool
}

// DefaultAWSSecretsManagerConfig returns default configuration
func DefaultAWSSecretsManagerConfig(region string) *AWSSecretsManagerConfig {
	return &AWSSecretsManagerConfig{
		Region:      region,
		CacheTTL:    5 * time.Minute,
		EnableCache: true,
	}
}

type secretValueGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type awsSecretsManagerAdapter struct {
	client secretValueGetter
	logger *zap.Logger
	cache  *secretCache
}

// NewAWSSecretsManagerAdapter creates a new AWS Secrets Manager adapter
func NewAWSSecretsManagerAdapter(ctx context.Context, cfg *AWSSecretsManagerConfig, logger *zap.Logger) (ports.SecretManagerAdapter, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	logger.Info("AWS Secrets Manager backend ready",
		zap.String("region", cfg.Region),
		zap.Bool("cache_enabled", cfg.EnableCache),
	)

	return newAWSSecretsManagerAdapter(client, cfg, logger), nil
}

func newAWSSecretsManagerAdapter(client secretValueGetter, cfg *AWSSecretsManagerConfig, logger *zap.Logger) *awsSecretsManagerAdapter {
	return &awsSecretsManagerAdapter{
		client: client,
		logger: logger,
		cache:  newSecretCache(cfg.EnableCache, cfg.CacheTTL),
	}
}

// GetSecret retrieves the current version of a secret by name or ARN.
// SecretString may hold the JSON envelope; binary secrets are read as raw
// bytes.
func (a *awsSecretsManagerAdapter) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	return a.cache.load(ctx, path, a.logger, func(ctx context.Context) (*ports.Secret, error) {
		out, err := a.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(path),
		})
		var notFound *smtypes.ResourceNotFoundException
		switch {
		case errors.As(err, &notFound):
			return nil, fmt.Errorf("%w: %s", ports.ErrSecretNotFound, path)
		case err != nil:
			a.logger.Error("AWS GetSecretValue failed", zap.String("path", path), zap.Error(err))
			return nil, fmt.Errorf("get secret %s: %w", path, err)
		}

		var secret *ports.Secret
		if out.SecretString != nil {
			secret = parsePayload([]byte(*out.SecretString))
		} else {
			secret = parsePayload(out.SecretBinary)
		}
		secret.Version = aws.ToString(out.VersionId)
		if out.CreatedDate != nil && secret.CreatedAt == "" {
			secret.CreatedAt = out.CreatedDate.UTC().Format(time.RFC3339)
		}
		if out.ARN != nil {
			secret.Metadata["arn"] = aws.ToString(out.ARN)
		}
		return secret, nil
	})
}
