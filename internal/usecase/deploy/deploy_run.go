// Where: internal/usecase/deploy/deploy_run.go
// What: Workflow.Run orchestration skeleton.
// Why: Keep the step order visible while step bodies live in dedicated files.
package deploy

import (
	"context"
	"time"

	"github.com/aaqstack/deployctl/internal/infra/logging"
	"go.uber.org/zap"
)

type stepFunc func(ctx context.Context, run *runState) error

type step struct {
	name string
	run  stepFunc
	// plan replaces run for dry runs; nil skips the step.
	plan stepFunc
	skip func(req Request) bool
}

// runState carries values between steps of one run.
type runState struct {
	req     Request
	result  Result
	secrets map[string]string
	logger  *zap.Logger
}

func (w Workflow) steps() []step {
	return []step{
		{name: StepResolveEnv, run: w.resolveEnv, plan: w.resolveEnv},
		{name: StepSecrets, run: w.readSecrets},
		{name: StepEnvFiles, run: w.writeEnvFiles},
		{name: StepBuild, run: w.buildImages, skip: func(req Request) bool { return req.SkipBuild || len(req.Stack.Images) == 0 }},
		{name: StepVerify, run: w.verifyImages, skip: func(req Request) bool { return req.SkipVerify || len(req.Stack.Images) == 0 }},
		{name: StepCopyFiles, run: w.copyFiles, plan: w.planCopies},
		{name: StepRemoteRun, run: w.runRemote, plan: w.renderScript},
		{name: StepHealth, run: w.checkHealth},
	}
}

// Run executes the pipeline. Steps run strictly in order; the first failure
// stops the run and is returned as a *StepError. The record step runs after
// success or failure and never changes the outcome.
func (w Workflow) Run(ctx context.Context, req Request) (Result, error) {
	run := &runState{req: req, logger: logging.OrNop(w.Logger)}
	total := len(Steps)

	var runErr error
	for i, s := range w.steps() {
		w.step(i+1, total, s.name)
		fn := s.run
		if req.DryRun {
			fn = s.plan
		}
		if fn == nil || (s.skip != nil && s.skip(req)) {
			run.result.Skipped = append(run.result.Skipped, s.name)
			run.logger.Debug("step skipped", zap.String("step", s.name))
			continue
		}
		started := time.Now()
		if err := fn(ctx, run); err != nil {
			runErr = &StepError{Step: s.name, Err: err}
			run.result.FailedStep = s.name
			run.logger.Error("step failed", zap.String("step", s.name), zap.Error(err))
			break
		}
		run.logger.Debug("step finished", zap.String("step", s.name), zap.Duration("elapsed", time.Since(started)))
	}

	w.step(total, total, StepRecord)
	w.record(ctx, run, runErr)
	w.saveState(run, runErr)
	return run.result, runErr
}

func (w Workflow) step(index, total int, name string) {
	if w.UserInterface != nil {
		w.UserInterface.Step(index, total, name)
	}
}

func (w Workflow) warn(msg string) {
	if w.UserInterface != nil {
		w.UserInterface.Warn(msg)
	}
}

func (w Workflow) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}
