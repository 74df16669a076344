// Where: internal/domain/remote/script.go
// What: Render the shell script run on the target instance.
// Why: Keep the stop/remove/run sequence reviewable and testable offline.
package remote

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/aaqstack/deployctl/internal/domain/stack"
	"github.com/aaqstack/deployctl/internal/meta"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	scriptOnce sync.Once
	scriptTmpl *template.Template
	scriptErr  error

	errNoServices = errors.New("no services to deploy")
)

// ScriptInput is the data rendered into the deploy script.
type ScriptInput struct {
	Env      string
	Ref      string
	Workdir  string
	Services []stack.Service
}

type scriptData struct {
	ScriptInput
	App      string
	Networks []string
}

// RenderScript renders the deploy script for services.
// Services are run in the order given with defaults applied.
func RenderScript(input ScriptInput) (string, error) {
	if len(input.Services) == 0 {
		return "", errNoServices
	}
	services := make([]stack.Service, 0, len(input.Services))
	for _, svc := range input.Services {
		svc = svc.WithDefaults()
		if strings.TrimSpace(svc.Image) == "" {
			return "", fmt.Errorf("service %s: image is required", svc.Name)
		}
		services = append(services, svc)
	}
	input.Services = services

	tmpl, err := loadScriptTemplate()
	if err != nil {
		return "", err
	}
	data := scriptData{
		ScriptInput: input,
		App:         meta.AppName,
		Networks:    stack.Networks(services),
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render deploy script: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n") + "\n", nil
}

func loadScriptTemplate() (*template.Template, error) {
	scriptOnce.Do(func() {
		funcs := sprig.TxtFuncMap()
		funcs["shq"] = ShellQuote
		scriptTmpl, scriptErr = template.New("deploy.sh.tmpl").Funcs(funcs).ParseFS(templateFS, "templates/deploy.sh.tmpl")
	})
	return scriptTmpl, scriptErr
}

// ShellQuote quotes value for a POSIX shell. Plain words are left as is.
func ShellQuote(value string) string {
	if value == "" {
		return "''"
	}
	if isShellSafe(value) {
		return value
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}

func isShellSafe(value string) bool {
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("-_./:=@,+%", r):
		default:
			return false
		}
	}
	return true
}
