package config

import "context"

// SecretProvider resolves secret values by key: SSM parameter paths in
// deployed environments, environment variable names locally.
type SecretProvider interface {
	// GetParametersBatch returns the plaintext value of every key it could
	// resolve. Keys that do not exist are omitted from the result.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
