// Where: internal/command/env.go
// What: env resolve, env detect, and env files commands.
// Why: CI steps need the environment name before any deploy tool runs.
package command

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aaqstack/deployctl/internal/infra/ci"
	"github.com/aaqstack/deployctl/internal/infra/envfile"
	"github.com/aaqstack/deployctl/internal/infra/secrets"
	"github.com/aaqstack/deployctl/internal/infra/ui"
	"go.uber.org/zap"
)

// EnvGitHubOutput is the file GitHub Actions reads step outputs from.
const EnvGitHubOutput = "GITHUB_OUTPUT"

type (
	EnvCmd struct {
		Resolve EnvResolveCmd `cmd:"" help:"Print the environment name for the current trigger"`
		Detect  EnvDetectCmd  `cmd:"" help:"Show the detected trigger"`
		Files   EnvFilesCmd   `cmd:"" help:"Generate .<name>.env files from templates and secrets"`
	}

	EnvResolveCmd struct {
		TriggerFlags `embed:""`
		GitHubOutput bool `name:"github-output" help:"Also append env and namespace to $GITHUB_OUTPUT"`
	}

	EnvDetectCmd struct {
		TriggerFlags `embed:""`
	}

	EnvFilesCmd struct {
		TriggerFlags `embed:""`
		EnvFlag      `embed:""`
		Force        bool `help:"Overwrite existing env files"`
	}
)

// runEnvResolve prints only the name so it can be captured with $(...).
// The stack config is optional here; without it the policy must come from
// a flag or DEPLOYCTL_POLICY and no namespace is reported.
func runEnvResolve(rc *runContext) error {
	cmd := rc.cli.Env.Resolve
	p, _, err := rc.loadOptionalProject()
	if err != nil {
		return err
	}
	res, err := rc.resolveEnv(p, cmd.TriggerFlags)
	if err != nil {
		return err
	}
	if override := firstEnv("", rc.deps.Getenv); override != "" && override != res.env {
		rc.logger.Warn("ignoring environment override; env resolve reports the resolved name",
			zap.String("override", override), zap.String("env", res.env))
	}
	fmt.Fprintln(rc.out, res.env)

	if cmd.GitHubOutput {
		if err := appendGitHubOutput(rc.deps.Getenv(EnvGitHubOutput), res); err != nil {
			return err
		}
	}
	return nil
}

func appendGitHubOutput(path string, res resolution) error {
	if path == "" {
		return fmt.Errorf("%s is not set", EnvGitHubOutput)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", EnvGitHubOutput, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "env=%s\n", res.env); err != nil {
		return err
	}
	if res.namespace != "" {
		if _, err := fmt.Fprintf(f, "namespace=%s\n", res.namespace); err != nil {
			return err
		}
	}
	return nil
}

func runEnvDetect(rc *runContext) error {
	cmd := rc.cli.Env.Detect
	p, _, err := rc.loadOptionalProject()
	if err != nil {
		return err
	}
	res, err := rc.resolveEnv(p, cmd.TriggerFlags)
	if err != nil {
		return err
	}
	rows := []ui.KeyValue{
		{Key: "event", Value: res.trigger.Event},
		{Key: "ref", Value: res.trigger.Ref},
		{Key: "action", Value: valueOrDash(res.trigger.Action)},
		{Key: "policy", Value: res.policy},
		{Key: "env", Value: valueOrDash(res.env)},
		{Key: "namespace", Value: valueOrDash(res.namespace)},
		{Key: "override", Value: valueOrDash(firstEnv("", rc.deps.Getenv))},
		{Key: "ci", Value: ci.InCI(rc.deps.Getenv)},
	}
	rc.console.Block("🔎", "Trigger", rows)
	return nil
}

func runEnvFiles(rc *runContext) error {
	cmd := rc.cli.Env.Files
	p, err := rc.loadProject()
	if err != nil {
		return err
	}
	res, err := rc.requireEnv(p, cmd.TriggerFlags, cmd.Env)
	if err != nil {
		return err
	}
	values, err := rc.readSecretGroup(p, res)
	if err != nil {
		return err
	}
	dir := resolvePath(p.root, p.stack.EnvFiles.Dir)
	results, err := envfile.Materialize(dir, secrets.AsEnv(values), cmd.Force)
	if err != nil {
		return err
	}
	rows := make([]ui.KeyValue, 0, len(results))
	for _, r := range results {
		rows = append(rows, ui.KeyValue{Key: filepath.Base(r.Target), Value: r.Status})
	}
	rc.console.Block("📄", fmt.Sprintf("Env files for %s", res.env), rows)
	return nil
}

// readSecretGroup reads the domain key plus the configured keys for res.
func (rc *runContext) readSecretGroup(p project, res resolution) (map[string]string, error) {
	store, err := rc.secretStore(p)
	if err != nil {
		return nil, err
	}
	keys := append([]string{p.stack.Secrets.DomainKey}, p.stack.Secrets.Keys...)
	return secrets.ResolveGroup(rc.ctx, store, res.namespace, keys)
}

func (rc *runContext) secretStore(p project) (secrets.Store, error) {
	return rc.deps.NewSecretStore(rc.ctx, p.stack.Secrets, p.root, rc.logger)
}

func valueOrDash(value any) any {
	if s, ok := value.(string); ok && s == "" {
		return "-"
	}
	return value
}

