// Where: internal/command/deploy.go
// What: deploy command adapter.
// Why: Translate flags into a pipeline request and wire the pipeline's collaborators.
package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aaqstack/deployctl/internal/domain/envname"
	"github.com/aaqstack/deployctl/internal/infra/ci"
	"github.com/aaqstack/deployctl/internal/infra/config"
	"github.com/aaqstack/deployctl/internal/infra/envutil"
	"github.com/aaqstack/deployctl/internal/infra/image"
	"github.com/aaqstack/deployctl/internal/infra/remote"
	"github.com/aaqstack/deployctl/internal/infra/ui"
	"github.com/aaqstack/deployctl/internal/meta"
	"github.com/aaqstack/deployctl/internal/usecase/deploy"
)

// DeployCmd runs every pipeline step for the resolved environment.
type DeployCmd struct {
	TriggerFlags  `embed:""`
	EnvFlag       `embed:""`
	SkipBuild     bool `name:"skip-build" help:"Reuse images already pushed for this ref"`
	SkipVerify    bool `name:"skip-verify" help:"Skip registry manifest verification"`
	ForceEnvFiles bool `name:"force-env-files" help:"Regenerate env files that already exist"`
	DryRun        bool `name:"dry-run" help:"Print the plan and script without running anything"`
	Yes           bool `short:"y" help:"Skip the confirmation prompt for production deploys"`
}

var errDeployCancelled = errors.New("deploy cancelled")

func runDeploy(rc *runContext) error {
	cmd := rc.cli.Deploy
	p, err := rc.loadProject()
	if err != nil {
		return err
	}
	trigger, err := rc.detectTrigger(cmd.TriggerFlags, p.root)
	if err != nil {
		return err
	}
	policy, err := rc.policyFor(cmd.TriggerFlags, p.stack.Policy)
	if err != nil {
		return err
	}
	if err := rc.confirmProduction(cmd, trigger, policy); err != nil {
		return err
	}
	statePath, err := config.StatePath(p.root)
	if err != nil {
		return err
	}

	workflow, cleanup, err := rc.newWorkflow(p, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	req := deploy.Request{
		Stack:         p.stack,
		Root:          p.root,
		Trigger:       trigger,
		Policy:        policy,
		Env:           firstEnv(cmd.Env, rc.deps.Getenv),
		Strict:        cmd.Strict,
		SkipBuild:     cmd.SkipBuild,
		SkipVerify:    cmd.SkipVerify,
		ForceEnvFiles: cmd.ForceEnvFiles,
		DryRun:        cmd.DryRun,
		StatePath:     statePath,
	}
	rc.console.Header("🚀", fmt.Sprintf("Deploying %s (%s %s)", p.stack.Project, trigger.Event, trigger.Ref))

	result, err := workflow.Run(rc.ctx, req)
	if cmd.DryRun && err == nil {
		printPlan(rc.console, result)
		fmt.Fprint(rc.out, result.Script)
		return nil
	}
	if err != nil {
		rc.console.Error(fmt.Sprintf("deploy to %s halted at %s", valueOrDash(result.Env), deploy.FailedStep(err)))
		return err
	}
	rc.console.Success(fmt.Sprintf("deployed %s to %s", p.stack.Project, result.Env))
	return nil
}

// confirmProduction prompts before a production deploy started from an
// interactive terminal outside CI. Resolution errors are left to the pipeline.
func (rc *runContext) confirmProduction(cmd DeployCmd, trigger envname.Trigger, policy envname.Policy) error {
	if cmd.DryRun || cmd.Yes || ci.InCI(rc.deps.Getenv) || !rc.deps.Interactive() {
		return nil
	}
	env := firstEnv(cmd.Env, rc.deps.Getenv)
	if env == "" {
		env, _ = envname.Resolve(policy, trigger)
	}
	if env != envname.Production {
		return nil
	}
	ok, err := rc.deps.Confirmer.Confirm(
		fmt.Sprintf("Deploy %s to production?", trigger.Ref),
		fmt.Sprintf("event %s, policy %s", trigger.Event, policy),
	)
	if err != nil {
		return err
	}
	if !ok {
		return errDeployCancelled
	}
	return nil
}

// newWorkflow constructs only the collaborators the requested run will use.
func (rc *runContext) newWorkflow(p project, cmd DeployCmd) (deploy.Workflow, func(), error) {
	cleanup := func() {}
	workflow := deploy.Workflow{
		UserInterface: rc.console,
		Logger:        rc.logger,
		Now:           rc.deps.Now,
	}
	if cmd.DryRun {
		return workflow, cleanup, nil
	}

	store, err := rc.secretStore(p)
	if err != nil {
		return deploy.Workflow{}, cleanup, err
	}
	workflow.Secrets = store

	executor := remote.NewGcloudExecutor(remote.Target{
		Instance: p.stack.Instance.Name,
		Zone:     p.stack.Instance.Zone,
		Project:  p.stack.Instance.Project,
	}, rc.deps.Runner, p.root, rc.logger)
	workflow.Executor = executor
	workflow.Builder = image.NewBuilder(rc.deps.Runner, p.root, rc.logger)

	if !cmd.SkipVerify && len(p.stack.Images) > 0 {
		if rc.deps.NewVerifier == nil {
			return deploy.Workflow{}, cleanup, errors.New("image verification is not available; use --skip-verify")
		}
		verifier, closer, err := rc.deps.NewVerifier(rc.ctx, p.stack.Registry.Host, rc.logger)
		if err != nil {
			return deploy.Workflow{}, cleanup, err
		}
		workflow.Verifier = verifier
		if closer != nil {
			cleanup = func() { _ = closer.Close() }
		}
	}

	if rc.deps.NewHealthChecker != nil {
		workflow.Health = rc.deps.NewHealthChecker(p.stack.Health.Wait, p.stack.Health.Timeout, rc.logger)
	}

	hist, err := rc.history(p)
	if err != nil {
		rc.console.Warn(fmt.Sprintf("history disabled: %v", err))
	}
	if hist.Ledger != nil {
		workflow.Ledger = hist.Ledger
	}
	if hist.Archiver != nil {
		workflow.Archiver = hist.Archiver
	}
	return workflow, cleanup, nil
}

func printPlan(console *ui.Console, result deploy.Result) {
	rows := []ui.KeyValue{
		{Key: "env", Value: result.Env},
		{Key: "namespace", Value: result.Namespace},
	}
	for _, tag := range result.AllTags() {
		rows = append(rows, ui.KeyValue{Key: "image", Value: tag})
	}
	for _, c := range result.Copies {
		rows = append(rows, ui.KeyValue{Key: "copy", Value: c.Source + " -> " + c.Destination})
	}
	console.Block("📋", "Plan", rows)
}

func firstEnv(flag string, getenv func(string) string) string {
	return strings.TrimSpace(envutil.FirstNonEmpty(flag, getenv(envutil.HostEnvKey(meta.EnvVarEnv))))
}
