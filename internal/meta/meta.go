// Where: internal/meta/meta.go
// What: CLI-local metadata constants.
// Why: Keep branding and directory names in one place.
package meta

const (
	// Project Identity
	AppName   = "deployctl"
	EnvPrefix = "DEPLOYCTL"

	// Directory Layout
	HomeDir           = ".deployctl"
	StateFile         = "state.yaml"
	DefaultConfigPath = "deploy/stack.yaml"

	// Host env suffixes read through envutil.
	EnvVarEnv              = "ENV"
	EnvVarPolicy           = "POLICY"
	EnvVarRegistryUsername = "REGISTRY_USERNAME"
	EnvVarRegistryPassword = "REGISTRY_PASSWORD"
	EnvVarHistoryEndpoint  = "HISTORY_ENDPOINT"
	EnvVarHistoryAccessKey = "HISTORY_ACCESS_KEY"
	EnvVarHistorySecretKey = "HISTORY_SECRET_KEY"
)
