package secrets

import (
	"context"
	"fmt"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/kevin07696/mpesa-bridge/internal/adapters/ports"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GCPSecretManagerConfig contains configuration for GCP Secret Manager
type GCPSecretManagerConfig struct {
	ProjectID   string
	CacheTTL    time.Duration
	EnableCache bool
}

// DefaultGCPSecretManagerConfig returns default configuration
func DefaultGCPSecretManagerConfig(projectID string) *GCPSecretManagerConfig {
	return &GCPSecretManagerConfig{
		ProjectID:   projectID,
		CacheTTL:    5 * time.Minute,
		EnableCache: true,
	}
}

// secretVersionAccessor is the slice of the GCP client this adapter uses
type secretVersionAccessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

type gcpSecretManager struct {
	client    secretVersionAccessor
	projectID string
	logger    *zap.Logger
	cache     *secretCache
}

// NewGCPSecretManager creates a GCP Secret Manager adapter using
// application default credentials. The returned closer releases the
// underlying gRPC connection.
func NewGCPSecretManager(ctx context.Context, cfg *GCPSecretManagerConfig, logger *zap.Logger) (ports.SecretManagerAdapter, func() error, error) {
	if cfg.ProjectID == "" {
		return nil, nil, fmt.Errorf("GCP project ID is required")
	}

	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create GCP Secret Manager client: %w", err)
	}

	logger.Info("GCP Secret Manager adapter initialized",
		zap.String("project_id", cfg.ProjectID),
		zap.Bool("cache_enabled", cfg.EnableCache),
		zap.Duration("cache_ttl", cfg.CacheTTL),
	)

	return newGCPSecretManager(client, cfg, logger), client.Close, nil
}

func newGCPSecretManager(client secretVersionAccessor, cfg *GCPSecretManagerConfig, logger *zap.Logger) *gcpSecretManager {
	return &gcpSecretManager{
		client:    client,
		projectID: cfg.ProjectID,
		logger:    logger,
		cache:     newSecretCache(cfg.EnableCache, cfg.CacheTTL),
	}
}

// gcpSecretID maps a slash path onto GCP's flat secret namespace:
// "mpesa-bridge/daraja_passkey" becomes "mpesa-bridge-daraja_passkey".
func gcpSecretID(path string) string {
	return strings.ReplaceAll(strings.Trim(path, "/"), "/", "-")
}

// GetSecret retrieves the latest version of a secret
func (g *gcpSecretManager) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	return g.cache.load(ctx, path, g.logger, func(ctx context.Context) (*ports.Secret, error) {
		name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", g.projectID, gcpSecretID(path))
		result, err := g.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: %s", ports.ErrSecretNotFound, path)
		}
		if err != nil {
			g.logger.Error("Failed to access GCP secret",
				zap.String("path", path),
				zap.String("secret_name", name),
				zap.Error(err),
			)
			return nil, fmt.Errorf("access GCP secret %s: %w", path, err)
		}

		secret := parsePayload(result.GetPayload().GetData())
		secret.Version = versionFromName(result.GetName())
		secret.Metadata["gcp_project_id"] = g.projectID
		secret.Metadata["gcp_secret"] = gcpSecretID(path)
		return secret, nil
	})
}

// versionFromName returns the trailing version of
// projects/{p}/secrets/{s}/versions/{v}
func versionFromName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
