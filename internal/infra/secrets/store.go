// Package secrets reads per-environment secrets from a managed store.
//
// Secrets are named <namespace>-<key>, where the namespace is
// <project>-<env>. Values are never logged; only IDs are.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("secret not found")
	ErrEmpty        = errors.New("secret has no value")
	ErrAccessDenied = errors.New("access denied to secret")
	errIDRequired   = errors.New("secret id is required")
)

// Store reads secrets by ID.
type Store interface {
	Get(ctx context.Context, id string) (string, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// ID joins namespace and key into a secret ID.
func ID(namespace, key string) string {
	return namespace + "-" + key
}

// ResolveGroup reads every key in namespace and returns key -> value.
// The first missing or unreadable secret aborts the lookup.
func ResolveGroup(ctx context.Context, store Store, namespace string, keys []string) (map[string]string, error) {
	values := make(map[string]string, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		id := ID(namespace, key)
		value, err := store.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("secret %s: %w", id, err)
		}
		values[key] = value
	}
	return values, nil
}

// EnvKey converts a secret key such as openai-api-key into the variable
// name OPENAI_API_KEY used in env files.
func EnvKey(key string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(key), "-", "_"))
}

// AsEnv maps ResolveGroup output to env-file variable names.
func AsEnv(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for key, value := range values {
		out[EnvKey(key)] = value
	}
	return out
}
