// Where: internal/usecase/deploy/deploy_steps.go
// What: Bodies of the pipeline steps up to the health check.
// Why: Each step is a thin adapter from the run state to one collaborator.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aaqstack/deployctl/internal/domain/envname"
	"github.com/aaqstack/deployctl/internal/domain/remote"
	"github.com/aaqstack/deployctl/internal/domain/stack"
	"github.com/aaqstack/deployctl/internal/infra/envfile"
	"github.com/aaqstack/deployctl/internal/infra/health"
	"github.com/aaqstack/deployctl/internal/infra/image"
	"github.com/aaqstack/deployctl/internal/infra/secrets"
	"go.uber.org/zap"
)

// resolveEnv picks the environment and plans image tags. Invalid tags fail
// here so nothing is built for a ref that cannot be published.
func (w Workflow) resolveEnv(_ context.Context, run *runState) error {
	req := run.req
	env := req.Env
	if env == "" {
		policy := req.Policy
		if policy == "" {
			parsed, err := envname.ParsePolicy(req.Stack.Policy)
			if err != nil {
				return err
			}
			policy = parsed
		}
		var err error
		if req.Strict {
			env, err = envname.CheckReserved(policy, req.Trigger)
		} else {
			env, err = envname.Resolve(policy, req.Trigger)
		}
		if err != nil {
			return err
		}
	}
	if env == "" {
		return envname.ErrEmptyEnv
	}
	run.result.Env = env
	run.result.Namespace = req.Stack.Namespace(env)

	for _, img := range req.Stack.Images {
		tags, err := stack.Tags(req.Stack.ImageRef(img), req.Trigger.Ref)
		if err != nil {
			return fmt.Errorf("image %s: %w", img.Name, err)
		}
		run.result.Images = append(run.result.Images, PlannedImage{Image: img, Tags: tags})
	}
	run.logger.Info("resolved environment",
		zap.String("env", env),
		zap.String("namespace", run.result.Namespace),
		zap.String("ref", req.Trigger.Ref),
		zap.String("event", string(req.Trigger.Event)),
	)
	return nil
}

func (w Workflow) readSecrets(ctx context.Context, run *runState) error {
	if w.Secrets == nil {
		return errSecretStoreNotConfigured
	}
	cfg := run.req.Stack.Secrets
	keys := append([]string{cfg.DomainKey}, cfg.Keys...)
	values, err := secrets.ResolveGroup(ctx, w.Secrets, run.result.Namespace, dedupe(keys))
	if err != nil {
		return err
	}
	domain := values[cfg.DomainKey]
	if domain == "" {
		return fmt.Errorf("%w: %s", errDomainMissing, secrets.ID(run.result.Namespace, cfg.DomainKey))
	}
	run.secrets = values
	run.result.Domain = domain
	run.logger.Info("read secrets", zap.String("namespace", run.result.Namespace), zap.Int("count", len(values)))
	return nil
}

func (w Workflow) writeEnvFiles(_ context.Context, run *runState) error {
	dir := resolvePath(run.req.Root, run.req.Stack.EnvFiles.Dir)
	results, err := envfile.Materialize(dir, secrets.AsEnv(run.secrets), run.req.ForceEnvFiles)
	if err != nil {
		return err
	}
	for _, res := range results {
		run.logger.Debug("env file",
			zap.String("target", res.Target),
			zap.String("status", string(res.Status)),
			zap.Strings("replaced", res.Replaced),
		)
		if res.Status == envfile.StatusSkipped {
			w.warn(fmt.Sprintf("kept existing %s (use --force-env-files to regenerate)", res.Target))
		}
	}
	run.result.EnvFiles = results
	return nil
}

func (w Workflow) buildImages(ctx context.Context, run *runState) error {
	if w.Builder == nil {
		return errBuilderNotConfigured
	}
	for _, planned := range run.result.Images {
		err := w.Builder.Build(ctx, image.BuildRequest{
			Name:       planned.Image.Name,
			Context:    resolvePath(run.req.Root, planned.Image.Context),
			Dockerfile: resolvePath(run.req.Root, planned.Image.Dockerfile),
			Platforms:  run.req.Stack.Registry.Platforms,
			Tags:       planned.Tags,
			Push:       true,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (w Workflow) verifyImages(ctx context.Context, run *runState) error {
	if w.Verifier == nil {
		return errVerifierNotConfigured
	}
	verified, err := w.Verifier.Verify(ctx, run.result.AllTags(), run.req.Stack.Registry.Platforms)
	if err != nil {
		return err
	}
	for _, v := range verified {
		run.logger.Info("verified image", zap.String("ref", v.Ref), zap.String("digest", v.Digest))
	}
	return nil
}

// planCopies lists configured files. Missing sources are an error only at copy time.
func (w Workflow) planCopies(_ context.Context, run *runState) error {
	workdir := run.req.Stack.Instance.Workdir
	copies := make([]Copy, 0, len(run.req.Stack.Files))
	for _, f := range run.req.Stack.Files {
		dst := f.Destination
		if !path.IsAbs(dst) && workdir != "" {
			dst = path.Join(workdir, dst)
		}
		copies = append(copies, Copy{Source: resolvePath(run.req.Root, f.Source), Destination: dst})
	}
	run.result.Copies = copies
	return nil
}

func (w Workflow) copyFiles(ctx context.Context, run *runState) error {
	if w.Executor == nil {
		return errExecutorNotConfigured
	}
	if err := w.planCopies(ctx, run); err != nil {
		return err
	}
	for _, c := range run.result.Copies {
		if _, err := os.Stat(c.Source); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("copy source %s does not exist", c.Source)
			}
			return err
		}
		if err := w.Executor.Copy(ctx, c.Source, c.Destination); err != nil {
			return err
		}
	}
	return nil
}

func (w Workflow) renderScript(_ context.Context, run *runState) error {
	script, err := remote.RenderScript(remote.ScriptInput{
		Env:      run.result.Env,
		Ref:      run.req.Trigger.Ref,
		Workdir:  run.req.Stack.Instance.Workdir,
		Services: run.req.Stack.StackServices(run.req.Trigger.Ref),
	})
	if err != nil {
		return err
	}
	run.result.Script = script
	return nil
}

func (w Workflow) runRemote(ctx context.Context, run *runState) error {
	if w.Executor == nil {
		return errExecutorNotConfigured
	}
	if err := w.renderScript(ctx, run); err != nil {
		return err
	}
	return w.Executor.Run(ctx, run.result.Script)
}

func (w Workflow) checkHealth(ctx context.Context, run *runState) error {
	if w.Health == nil {
		return errCheckerNotConfigured
	}
	cfg := run.req.Stack.Health
	url, err := health.URL(cfg.Scheme, run.result.Domain, cfg.Path)
	if err != nil {
		return err
	}
	run.result.HealthURL = url
	return w.Health.Check(ctx, url)
}

func resolvePath(root, p string) string {
	if p == "" || filepath.IsAbs(p) || root == "" {
		return p
	}
	return filepath.Join(root, p)
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
