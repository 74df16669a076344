// Where: internal/infra/config/repo.go
// What: Project root discovery.
// Why: Commands run from any subdirectory of the repository.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aaqstack/deployctl/internal/meta"
)

var errProjectRootNotFound = errors.New("project root not found")

// ResolveProjectRoot walks up from startDir to the first directory holding
// the default stack file, a .deployctl directory, or a .git entry.
func ResolveProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolve start dir: %w", err)
	}
	for {
		if isProjectRoot(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w from %s", errProjectRootNotFound, startDir)
		}
		dir = parent
	}
}

func isProjectRoot(dir string) bool {
	for _, marker := range []string{meta.DefaultConfigPath, meta.HomeDir, ".git"} {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}
