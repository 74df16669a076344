// Where: internal/infra/config/state.go
// What: Local project state load/save.
// Why: Manage <project_root>/.deployctl/state.yaml consistently.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aaqstack/deployctl/internal/meta"
	"gopkg.in/yaml.v3"
)

// State records the last resolved environment and the last deploy per environment.
type State struct {
	Version int                    `yaml:"version"`
	LastEnv string                 `yaml:"last_env,omitempty"`
	Deploys map[string]DeployEntry `yaml:"deploys,omitempty"`
}

// DeployEntry stores the outcome of the most recent deploy to an environment.
type DeployEntry struct {
	Ref        string `yaml:"ref"`
	Event      string `yaml:"event"`
	Status     string `yaml:"status"`
	FailedStep string `yaml:"failed_step,omitempty"`
	DeployedAt string `yaml:"deployed_at"`
}

// DefaultState returns an initialized State with version set.
func DefaultState() State {
	return State{
		Version: 1,
		Deploys: map[string]DeployEntry{},
	}
}

// StatePath returns the path to the state file under projectRoot.
func StatePath(projectRoot string) (string, error) {
	root := strings.TrimSpace(projectRoot)
	if root == "" {
		return "", fmt.Errorf("project root is required")
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return filepath.Join(root, meta.HomeDir, meta.StateFile), nil
}

// LoadState reads the state file. A missing file yields DefaultState.
func LoadState(path string) (State, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultState(), nil
		}
		return State{}, fmt.Errorf("read state: %w", err)
	}

	var st State
	if err := yaml.Unmarshal(payload, &st); err != nil {
		return State{}, fmt.Errorf("decode state: %w", err)
	}
	if st.Deploys == nil {
		st.Deploys = map[string]DeployEntry{}
	}
	return st, nil
}

// SaveState writes st to path, creating the directory when needed.
func SaveState(path string, st State) error {
	payload, err := yaml.Marshal(&st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// RecordDeploy stores entry under env and marks env as last used.
func (s *State) RecordDeploy(env string, entry DeployEntry, now time.Time) {
	if s.Deploys == nil {
		s.Deploys = map[string]DeployEntry{}
	}
	if entry.DeployedAt == "" {
		entry.DeployedAt = now.UTC().Format(time.RFC3339)
	}
	s.Deploys[env] = entry
	s.LastEnv = env
}
