// Where: internal/command/resolve.go
// What: Shared flag groups, stack loading, and environment resolution.
// Why: Every command that touches an environment resolves it the same way.
package command

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/aaqstack/deployctl/internal/domain/envname"
	"github.com/aaqstack/deployctl/internal/infra/ci"
	"github.com/aaqstack/deployctl/internal/infra/config"
	"github.com/aaqstack/deployctl/internal/infra/envutil"
	"github.com/aaqstack/deployctl/internal/meta"
)

// TriggerFlags override values detected from the CI environment.
type TriggerFlags struct {
	Event  string `help:"Event kind (push, release, manual); detected when omitted"`
	Ref    string `help:"Branch or tag name; detected from CI or git when omitted"`
	Action string `help:"Release action, e.g. released"`
	Policy string `short:"p" help:"Resolution policy (branch or release); defaults to DEPLOYCTL_POLICY, then the stack policy"`
	Strict bool   `help:"Reject refs that collide with reserved environment names"`
}

// EnvFlag names the environment directly, skipping resolution.
type EnvFlag struct {
	Env string `short:"e" help:"Environment name; defaults to DEPLOYCTL_ENV, then resolution"`
}

// project is the loaded stack plus where it lives.
type project struct {
	stack config.Stack
	root  string
}

// resolution is the outcome of resolving an environment.
type resolution struct {
	trigger   envname.Trigger
	policy    envname.Policy
	env       string
	namespace string
}

func (rc *runContext) workDir() (string, error) {
	wd, err := rc.deps.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return wd, nil
}

func (rc *runContext) configPath() (string, error) {
	path := rc.cli.Config
	if path == "" {
		path = meta.DefaultConfigPath
	}
	if filepath.IsAbs(path) {
		return path, nil
	}
	wd, err := rc.workDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, path), nil
}

// loadProject loads the stack. The project root is the nearest ancestor of
// the config file that looks like a project root, else the working directory.
func (rc *runContext) loadProject() (project, error) {
	path, err := rc.configPath()
	if err != nil {
		return project{}, err
	}
	stack, err := config.LoadStack(path)
	if err != nil {
		return project{}, err
	}
	root, err := config.ResolveProjectRoot(filepath.Dir(path))
	if err != nil {
		if root, err = rc.workDir(); err != nil {
			return project{}, err
		}
	}
	rc.logger.Debug("loaded stack config")
	return project{stack: stack, root: root}, nil
}

// loadOptionalProject returns ok=false when the config file does not exist.
func (rc *runContext) loadOptionalProject() (project, bool, error) {
	p, err := rc.loadProject()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return project{}, false, nil
		}
		return project{}, false, err
	}
	return p, true, nil
}

func (rc *runContext) detectTrigger(flags TriggerFlags, root string) (envname.Trigger, error) {
	dir := root
	if dir == "" {
		wd, err := rc.workDir()
		if err != nil {
			return envname.Trigger{}, err
		}
		dir = wd
	}
	return rc.deps.Detector.Detect(dir, ci.Overrides{
		Event:  flags.Event,
		Ref:    flags.Ref,
		Action: flags.Action,
	})
}

// policyFor picks the flag, then DEPLOYCTL_POLICY, then the stack policy.
func (rc *runContext) policyFor(flags TriggerFlags, stackPolicy string) (envname.Policy, error) {
	value := envutil.FirstNonEmpty(flags.Policy, rc.deps.Getenv(envutil.HostEnvKey(meta.EnvVarPolicy)), stackPolicy)
	if value == "" {
		value = string(envname.PolicyReleaseAware)
	}
	return envname.ParsePolicy(value)
}

// resolveEnv detects the trigger and resolves the environment for p from
// the trigger alone. DEPLOYCTL_ENV is not consulted, so --strict always
// applies.
func (rc *runContext) resolveEnv(p project, flags TriggerFlags) (resolution, error) {
	return rc.resolveWith(p, flags, "")
}

// requireEnv resolves like resolveEnv, except an explicit env (flag or
// DEPLOYCTL_ENV) wins, and rejects an empty environment name.
func (rc *runContext) requireEnv(p project, flags TriggerFlags, explicit string) (resolution, error) {
	res, err := rc.resolveWith(p, flags, firstEnv(explicit, rc.deps.Getenv))
	if err != nil {
		return resolution{}, err
	}
	if res.env == "" {
		return resolution{}, envname.ErrEmptyEnv
	}
	return res, nil
}

func (rc *runContext) resolveWith(p project, flags TriggerFlags, override string) (resolution, error) {
	trigger, err := rc.detectTrigger(flags, p.root)
	if err != nil {
		return resolution{}, err
	}
	policy, err := rc.policyFor(flags, p.stack.Policy)
	if err != nil {
		return resolution{}, err
	}
	res := resolution{trigger: trigger, policy: policy}

	env := override
	switch {
	case env != "":
	case flags.Strict:
		env, err = envname.CheckReserved(policy, trigger)
	default:
		env, err = envname.Resolve(policy, trigger)
	}
	if err != nil {
		return resolution{}, err
	}
	res.env = env
	if p.stack.Project != "" {
		res.namespace = p.stack.Namespace(env)
	}
	return res, nil
}

func resolvePath(root, p string) string {
	if p == "" || filepath.IsAbs(p) || root == "" {
		return p
	}
	return filepath.Join(root, p)
}
