// Where: internal/infra/secrets/dotenv.go
// What: Dotenv file backed Store.
// Why: Local runs and CI jobs with injected secret files need no cloud access.
package secrets

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// DotenvStore serves secrets from a dotenv file whose keys are secret IDs.
type DotenvStore struct {
	values map[string]string
}

// NewDotenvStore reads path eagerly.
func NewDotenvStore(path string) (*DotenvStore, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read secrets file %s: %w", path, err)
	}
	return &DotenvStore{values: values}, nil
}

// NewMapStore serves secrets from values; used for dry runs and tests.
func NewMapStore(values map[string]string) *DotenvStore {
	copied := make(map[string]string, len(values))
	for key, value := range values {
		copied[key] = value
	}
	return &DotenvStore{values: copied}
}

func (s *DotenvStore) Get(_ context.Context, id string) (string, error) {
	if id == "" {
		return "", errIDRequired
	}
	value, ok := s.values[id]
	if !ok {
		return "", ErrNotFound
	}
	if value == "" {
		return "", ErrEmpty
	}
	return value, nil
}

func (s *DotenvStore) List(_ context.Context, prefix string) ([]string, error) {
	names := make([]string, 0, len(s.values))
	for key := range s.values {
		if strings.HasPrefix(key, prefix) {
			names = append(names, key)
		}
	}
	sort.Strings(names)
	return names, nil
}
