package ports

import (
	"context"
	"errors"
)

// Secret represents a retrieved secret with metadata
type Secret struct {
	Value     string            // The secret value (e.g., consumer secret)
	Version   string            // Secret version identifier
	Metadata  map[string]string // Additional secret metadata
	CreatedAt string            // When this version was created
}

// SecretManagerAdapter defines the port for reading credentials from a
// secret management service. Backends: local filesystem, AWS Secrets
// Manager, HashiCorp Vault.
type SecretManagerAdapter interface {
	// GetSecret retrieves a secret by its path/name, e.g.
	// "mpesa-bridge/daraja_consumer_secret".
	// Returns ErrSecretNotFound (wrapped) when the backend has no such secret.
	GetSecret(ctx context.Context, path string) (*Secret, error)
}

// ErrSecretNotFound is returned (wrapped) when a backend has no secret at a path
var ErrSecretNotFound = errors.New("secret not found")
