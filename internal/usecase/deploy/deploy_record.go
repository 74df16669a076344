// Where: internal/usecase/deploy/deploy_record.go
// What: Record step and local state update.
// Why: The outcome of every run is kept, but bookkeeping never changes the outcome.
package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/aaqstack/deployctl/internal/infra/config"
	"github.com/aaqstack/deployctl/internal/infra/history"
	"go.uber.org/zap"
)

const recordTimeout = 30 * time.Second

func (w Workflow) record(ctx context.Context, run *runState, runErr error) {
	if run.req.DryRun || w.Ledger == nil {
		run.result.Skipped = append(run.result.Skipped, StepRecord)
		return
	}
	if run.result.Env == "" {
		w.warn("history not recorded: environment was not resolved")
		return
	}

	// The run context may already be cancelled; the record still goes out.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	at := w.now()
	if w.Archiver != nil && run.result.Script != "" {
		key, err := w.Archiver.Archive(ctx, run.result.Env, at, run.result.Script)
		if err != nil {
			w.warn(fmt.Sprintf("script archive failed: %v", err))
		} else {
			run.result.ScriptKey = key
		}
	}

	rec := history.Record{
		Env:        run.result.Env,
		DeployedAt: at,
		Ref:        run.req.Trigger.Ref,
		Event:      string(run.req.Trigger.Event),
		Status:     status(runErr),
		FailedStep: run.result.FailedStep,
		Images:     run.result.AllTags(),
		ScriptKey:  run.result.ScriptKey,
	}
	if err := w.Ledger.Record(ctx, rec); err != nil {
		w.warn(fmt.Sprintf("history record failed: %v", err))
		return
	}
	run.logger.Info("recorded deploy", zap.String("env", rec.Env), zap.String("status", rec.Status))
}

func (w Workflow) saveState(run *runState, runErr error) {
	if run.req.DryRun || run.req.StatePath == "" || run.result.Env == "" {
		return
	}
	st, err := config.LoadState(run.req.StatePath)
	if err != nil {
		w.warn(fmt.Sprintf("state not saved: %v", err))
		return
	}
	st.RecordDeploy(run.result.Env, config.DeployEntry{
		Ref:        run.req.Trigger.Ref,
		Event:      string(run.req.Trigger.Event),
		Status:     status(runErr),
		FailedStep: run.result.FailedStep,
	}, w.now())
	if err := config.SaveState(run.req.StatePath, st); err != nil {
		w.warn(fmt.Sprintf("state not saved: %v", err))
	}
}

func status(runErr error) string {
	if runErr != nil {
		return history.StatusFailed
	}
	return history.StatusSucceeded
}
