package secrets

import (
	"encoding/json"
	"strings"

	"github.com/kevin07696/mpesa-bridge/internal/adapters/ports"
)

// secretEnvelope is the optional JSON form of a stored secret. Operators may
// store the bare credential instead; both are accepted everywhere.
type secretEnvelope struct {
	Value     string            `json:"value"`
	Tags      map[string]string `json:"tags"`
	CreatedAt string            `json:"created_at"`
}

// parsePayload reads a secret body that is either a JSON envelope with a
// non-empty "value" or the raw credential. Surrounding whitespace, including
// the trailing newline editors add, is dropped.
func parsePayload(data []byte) *ports.Secret {
	trimmed := strings.TrimSpace(string(data))

	if strings.HasPrefix(trimmed, "{") {
		var env secretEnvelope
		if err := json.Unmarshal([]byte(trimmed), &env); err == nil && env.Value != "" {
			metadata := env.Tags
			if metadata == nil {
				metadata = make(map[string]string)
			}
			return &ports.Secret{
				Value:     env.Value,
				Metadata:  metadata,
				CreatedAt: env.CreatedAt,
			}
		}
	}

	return &ports.Secret{
		Value:    trimmed,
		Metadata: make(map[string]string),
	}
}
