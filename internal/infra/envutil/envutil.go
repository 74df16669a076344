// Package envutil provides helper functions for host-level environment variables.
package envutil

import (
	"fmt"
	"os"
	"strings"

	"github.com/aaqstack/deployctl/internal/meta"
)

// HostEnvKey constructs a host-level environment variable name
// by combining meta.EnvPrefix with the given suffix.
// Example: HostEnvKey("ENV") returns "DEPLOYCTL_ENV".
func HostEnvKey(suffix string) string {
	return meta.EnvPrefix + "_" + strings.ToUpper(strings.TrimSpace(suffix))
}

// GetHostEnv retrieves a host-level environment variable, trimmed.
// Example: GetHostEnv("POLICY") returns the value of DEPLOYCTL_POLICY.
func GetHostEnv(suffix string) string {
	return strings.TrimSpace(os.Getenv(HostEnvKey(suffix)))
}

// SetHostEnv sets a host-level environment variable.
func SetHostEnv(suffix, value string) error {
	key := HostEnvKey(suffix)
	if err := os.Setenv(key, value); err != nil {
		return fmt.Errorf("set env %s: %w", key, err)
	}
	return nil
}

// FirstNonEmpty returns the first value that is not blank.
func FirstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
