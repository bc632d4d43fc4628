package secrets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kevin07696/mpesa-bridge/internal/adapters/ports"
	"go.uber.org/zap"
)

// localSecretManager reads one file per secret under basePath, the layout
// Docker and Kubernetes secret mounts produce. Development and single-host
// deployments only.
type localSecretManager struct {
	basePath string
	logger   *zap.Logger
}

// NewLocalSecretManager creates a new local filesystem secret manager
func NewLocalSecretManager(basePath string, logger *zap.Logger) ports.SecretManagerAdapter {
	return &localSecretManager{
		basePath: basePath,
		logger:   logger,
	}
}

// GetSecret reads <basePath>/<secretPath>. The path is cleaned as if rooted
// so "../" cannot leave basePath.
func (m *localSecretManager) GetSecret(_ context.Context, secretPath string) (*ports.Secret, error) {
	filePath := filepath.Join(m.basePath, filepath.Clean("/"+secretPath))

	data, err := os.ReadFile(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ports.ErrSecretNotFound, secretPath)
	}
	if err != nil {
		return nil, fmt.Errorf("read secret file %s: %w", secretPath, err)
	}

	secret := parsePayload(data)
	if info, statErr := os.Stat(filePath); statErr == nil {
		secret.Version = info.ModTime().UTC().Format("20060102T150405Z")
	}

	m.logger.Debug("Secret read from file", zap.String("path", secretPath))
	return secret, nil
}
