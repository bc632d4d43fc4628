package secrets

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/kevin07696/mpesa-bridge/internal/adapters/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeAccessor struct {
	secrets map[string]string
	err     error
	calls   int
}

func (f *fakeAccessor) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	value, ok := f.secrets[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "secret not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    "projects/duka-prod/secrets/x/versions/7",
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func TestGCPSecretManager_GetSecret(t *testing.T) {
	accessor := &fakeAccessor{secrets: map[string]string{
		"projects/duka-prod/secrets/mpesa-bridge-daraja_passkey/versions/latest": "pk-123",
	}}
	sm := newGCPSecretManager(accessor, DefaultGCPSecretManagerConfig("duka-prod"), zaptest.NewLogger(t))
	ctx := context.Background()

	secret, err := sm.GetSecret(ctx, "mpesa-bridge/daraja_passkey")
	require.NoError(t, err)
	assert.Equal(t, "pk-123", secret.Value)
	assert.Equal(t, "7", secret.Version)
	assert.Equal(t, "mpesa-bridge-daraja_passkey", secret.Metadata["gcp_secret"])

	_, err = sm.GetSecret(ctx, "mpesa-bridge/daraja_passkey")
	require.NoError(t, err)
	assert.Equal(t, 1, accessor.calls, "second read is served from cache")
}

func TestGCPSecretManager_NotFound(t *testing.T) {
	sm := newGCPSecretManager(&fakeAccessor{}, DefaultGCPSecretManagerConfig("duka-prod"), zaptest.NewLogger(t))

	_, err := sm.GetSecret(context.Background(), "mpesa-bridge/shopify_access_token")
	assert.ErrorIs(t, err, ports.ErrSecretNotFound)
}

func TestGCPSecretManager_BackendError(t *testing.T) {
	accessor := &fakeAccessor{err: status.Error(codes.PermissionDenied, "denied")}
	cfg := &GCPSecretManagerConfig{ProjectID: "duka-prod", CacheTTL: time.Minute}
	sm := newGCPSecretManager(accessor, cfg, zaptest.NewLogger(t))

	_, err := sm.GetSecret(context.Background(), "mpesa-bridge/daraja_passkey")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ports.ErrSecretNotFound))
}

func TestGCPSecretID(t *testing.T) {
	assert.Equal(t, "mpesa-bridge-daraja_passkey", gcpSecretID("/mpesa-bridge/daraja_passkey"))
	assert.Equal(t, "plain", gcpSecretID("plain"))
	assert.Equal(t, "7", versionFromName("projects/p/secrets/s/versions/7"))
}
