// Where: internal/infra/envfile/envfile.go
// What: Materialize per-service env files from committed templates.
// Why: Services read their runtime settings from .<name>.env files next to the stack.
package envfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

const (
	templatePrefix = "template."
	envSuffix      = ".env"
	fileMode       = 0o600
)

var (
	errDirRequired = errors.New("env files directory is required")

	// ErrMultilineValue is returned for values docker --env-file cannot carry.
	ErrMultilineValue = errors.New("env file value contains a newline")
)

// Pair is one template and the file generated from it.
type Pair struct {
	Name     string
	Template string
	Target   string
}

// Status reports what Materialize did with a pair.
type Status string

const (
	StatusWritten Status = "written"
	StatusSkipped Status = "skipped"
)

// Result is the outcome for one pair.
type Result struct {
	Pair
	Status   Status
	Replaced []string
}

// Discover lists template.<name>.env files in dir, sorted by name.
func Discover(dir string) ([]Pair, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errDirRequired
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read env files dir: %w", err)
	}
	var pairs []Pair
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, ok := templateName(entry.Name())
		if !ok {
			continue
		}
		pairs = append(pairs, Pair{
			Name:     name,
			Template: filepath.Join(dir, entry.Name()),
			Target:   filepath.Join(dir, TargetName(name)),
		})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Name < pairs[j].Name })
	return pairs, nil
}

// TargetName returns the generated file name for a template name.
func TargetName(name string) string {
	return "." + name + envSuffix
}

func templateName(file string) (string, bool) {
	if !strings.HasPrefix(file, templatePrefix) || !strings.HasSuffix(file, envSuffix) {
		return "", false
	}
	name := strings.TrimSuffix(strings.TrimPrefix(file, templatePrefix), envSuffix)
	if name == "" {
		return "", false
	}
	return name, true
}

// Materialize writes every discovered template to its target. Existing
// targets are kept unless force is set. Keys the template declares are
// replaced by overrides; overrides the template does not declare are ignored.
func Materialize(dir string, overrides map[string]string, force bool) ([]Result, error) {
	pairs, err := Discover(dir)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(pairs))
	for _, pair := range pairs {
		result, err := materializeOne(pair, overrides, force)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

func materializeOne(pair Pair, overrides map[string]string, force bool) (Result, error) {
	if !force {
		if _, err := os.Stat(pair.Target); err == nil {
			return Result{Pair: pair, Status: StatusSkipped}, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return Result{}, fmt.Errorf("stat %s: %w", pair.Target, err)
		}
	}

	raw, err := os.ReadFile(pair.Template)
	if err != nil {
		return Result{}, fmt.Errorf("read template %s: %w", pair.Template, err)
	}
	values, err := godotenv.UnmarshalBytes(raw)
	if err != nil {
		return Result{}, fmt.Errorf("parse template %s: %w", pair.Template, err)
	}
	applied := make(map[string]string)
	var replaced []string
	for key := range values {
		if value, ok := overrides[key]; ok {
			applied[key] = value
			replaced = append(replaced, key)
		}
	}
	sort.Strings(replaced)

	content, err := render(string(raw), applied)
	if err != nil {
		return Result{}, fmt.Errorf("render %s: %w", pair.Target, err)
	}
	if err := writePrivate(pair.Target, content); err != nil {
		return Result{}, err
	}
	return Result{Pair: pair, Status: StatusWritten, Replaced: replaced}, nil
}

// render rewrites the template line by line. Lines assigning an overridden
// key become KEY=value with no quoting or escapes, the form docker run
// --env-file reads. Every other line is kept verbatim.
func render(template string, overrides map[string]string) (string, error) {
	for key, value := range overrides {
		if strings.ContainsAny(value, "\r\n") {
			return "", fmt.Errorf("%w: %s", ErrMultilineValue, key)
		}
	}
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimRight(template, "\r\n"), "\n") {
		line = strings.TrimRight(line, "\r")
		key, ok := lineKey(line)
		value, overridden := overrides[key]
		if !ok || !overridden {
			b.WriteString(line)
			b.WriteString("\n")
			continue
		}
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(value)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// lineKey returns the variable a template line assigns, if any.
func lineKey(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	trimmed = strings.TrimPrefix(trimmed, "export ")
	key, _, found := strings.Cut(trimmed, "=")
	if !found {
		key, _, found = strings.Cut(trimmed, ":")
	}
	key = strings.TrimSpace(key)
	if !found || key == "" {
		return "", false
	}
	return key, true
}

// writePrivate replaces path with content through a temp file so the result
// is 0600 even when path already existed with wider permissions.
func writePrivate(path, content string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
