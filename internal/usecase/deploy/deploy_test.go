package deploy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/aaqstack/deployctl/internal/domain/envname"
	"github.com/aaqstack/deployctl/internal/domain/stack"
	"github.com/aaqstack/deployctl/internal/infra/config"
	"github.com/aaqstack/deployctl/internal/infra/history"
	"github.com/aaqstack/deployctl/internal/infra/secrets"
	"github.com/joho/godotenv"
)

func TestRunPushMainDeploysToTesting(t *testing.T) {
	f := newFixture(t)
	req := f.request()
	req.Trigger = envname.Trigger{Event: envname.EventPush, Ref: "main"}
	req.StatePath = filepath.Join(f.root, ".deployctl", "state.yaml")

	result, err := f.workflow.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Env != "testing" || result.Namespace != "aaq-testing" {
		t.Fatalf("unexpected env: %+v", result)
	}

	wantOrder := []string{"build:backend", "verify", "copy:.core_backend.env", "run", "health"}
	if !reflect.DeepEqual(f.rec.events, wantOrder) {
		t.Fatalf("unexpected order: %v", f.rec.events)
	}
	if !reflect.DeepEqual(f.ui.steps, Steps) {
		t.Fatalf("unexpected steps: %v", f.ui.steps)
	}

	wantTags := []string{"ghcr.io/idinsight/aaq-backend:latest", "ghcr.io/idinsight/aaq-backend:main"}
	if !reflect.DeepEqual(f.builder.reqs[0].Tags, wantTags) {
		t.Fatalf("unexpected tags: %v", f.builder.reqs[0].Tags)
	}
	if f.builder.reqs[0].Context != filepath.Join(f.root, "core_backend") {
		t.Fatalf("unexpected context: %s", f.builder.reqs[0].Context)
	}
	if f.builder.reqs[0].Dockerfile != filepath.Join(f.root, "core_backend", "Dockerfile") {
		t.Fatalf("unexpected dockerfile: %s", f.builder.reqs[0].Dockerfile)
	}
	if !reflect.DeepEqual(f.verifier.refs, wantTags) {
		t.Fatalf("unexpected verified refs: %v", f.verifier.refs)
	}

	values, err := godotenv.Read(filepath.Join(f.root, "deploy", ".core_backend.env"))
	if err != nil {
		t.Fatalf("read env file: %v", err)
	}
	if values["DOMAIN"] != "testing.aaq.example.org" || values["OPENAI_API_KEY"] != "sk-testing" || values["LOG_LEVEL"] != "info" {
		t.Fatalf("unexpected env file: %v", values)
	}

	if f.executor.copies[0].Destination != "/opt/aaq/.core_backend.env" {
		t.Fatalf("unexpected copy destination: %+v", f.executor.copies[0])
	}
	script := f.executor.scripts[0]
	if !strings.Contains(script, "ghcr.io/idinsight/aaq-backend:main") || !strings.Contains(script, "docker pull redis:7.2") {
		t.Fatalf("unexpected script:\n%s", script)
	}
	if f.checker.urls[0] != "https://testing.aaq.example.org/api/healthcheck" {
		t.Fatalf("unexpected health url: %v", f.checker.urls)
	}

	if len(f.ledger.records) != 1 {
		t.Fatalf("expected one record, got %d", len(f.ledger.records))
	}
	rec := f.ledger.records[0]
	if rec.Env != "testing" || rec.Status != history.StatusSucceeded || rec.Ref != "main" || rec.ScriptKey != "aaq/testing/20260501T120000Z.sh" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(f.archiver.scripts) != 1 || f.archiver.scripts[0] != script {
		t.Fatalf("archived script mismatch")
	}

	st, err := config.LoadState(req.StatePath)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if st.LastEnv != "testing" || st.Deploys["testing"].Status != history.StatusSucceeded {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestRunReleaseDeploysToProduction(t *testing.T) {
	f := newFixture(t)
	req := f.request()
	req.Trigger = envname.Trigger{Event: envname.EventRelease, Ref: "v1.2.0", Action: envname.ReleaseActionReleased}

	result, err := f.workflow.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Env != "production" || result.Domain != "aaq.example.org" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if f.builder.reqs[0].Tags[1] != "ghcr.io/idinsight/aaq-backend:v1.2.0" {
		t.Fatalf("unexpected tags: %v", f.builder.reqs[0].Tags)
	}
}

func TestRunHealthFailureStopsAndRecordsFailure(t *testing.T) {
	f := newFixture(t)
	f.checker.err = errors.New("502 bad gateway")
	req := f.request()
	req.Trigger = envname.Trigger{Event: envname.EventPush, Ref: "main"}

	result, err := f.workflow.Run(context.Background(), req)
	if err == nil {
		t.Fatalf("expected error")
	}
	if FailedStep(err) != StepHealth || result.FailedStep != StepHealth {
		t.Fatalf("unexpected failed step: %v / %q", err, result.FailedStep)
	}
	if len(f.ledger.records) != 1 || f.ledger.records[0].Status != history.StatusFailed || f.ledger.records[0].FailedStep != StepHealth {
		t.Fatalf("unexpected records: %+v", f.ledger.records)
	}
}

func TestRunFirstFailureHaltsLaterSteps(t *testing.T) {
	f := newFixture(t)
	f.builder.err = errors.New("buildx exited 1")
	req := f.request()
	req.Trigger = envname.Trigger{Event: envname.EventPush, Ref: "main"}

	_, err := f.workflow.Run(context.Background(), req)
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepBuild {
		t.Fatalf("expected build StepError, got %v", err)
	}
	if !reflect.DeepEqual(f.rec.events, []string{"build:backend"}) {
		t.Fatalf("later steps ran: %v", f.rec.events)
	}
}

func TestRunMissingSecretFails(t *testing.T) {
	f := newFixture(t)
	req := f.request()
	req.Trigger = envname.Trigger{Event: envname.EventPush, Ref: "staging"}

	_, err := f.workflow.Run(context.Background(), req)
	if FailedStep(err) != StepSecrets || !errors.Is(err, secrets.ErrNotFound) {
		t.Fatalf("expected secrets failure, got %v", err)
	}
	if len(f.rec.events) != 0 {
		t.Fatalf("nothing should run after secrets: %v", f.rec.events)
	}
	if len(f.ledger.records) != 1 || f.ledger.records[0].Env != "staging" {
		t.Fatalf("failure should still be recorded: %+v", f.ledger.records)
	}
}

func TestRunEmptyRefFailsResolution(t *testing.T) {
	f := newFixture(t)
	req := f.request()
	req.Trigger = envname.Trigger{Event: envname.EventPush}

	_, err := f.workflow.Run(context.Background(), req)
	if FailedStep(err) != StepResolveEnv || !errors.Is(err, envname.ErrEmptyEnv) {
		t.Fatalf("expected empty env failure, got %v", err)
	}
	if len(f.ledger.records) != 0 {
		t.Fatalf("unresolved run must not be recorded")
	}
	if len(f.ui.warns) == 0 {
		t.Fatalf("expected a warning about the skipped record")
	}
}

func TestRunInvalidTagFailsBeforeBuild(t *testing.T) {
	f := newFixture(t)
	req := f.request()
	req.Trigger = envname.Trigger{Event: envname.EventPush, Ref: "feature/login"}

	_, err := f.workflow.Run(context.Background(), req)
	if FailedStep(err) != StepResolveEnv || !errors.Is(err, stack.ErrInvalidTag) {
		t.Fatalf("expected invalid tag failure, got %v", err)
	}
}

func TestRunStrictRejectsReservedBranch(t *testing.T) {
	f := newFixture(t)
	req := f.request()
	req.Strict = true
	req.Trigger = envname.Trigger{Event: envname.EventPush, Ref: "production"}

	_, err := f.workflow.Run(context.Background(), req)
	if !errors.Is(err, envname.ErrReservedName) {
		t.Fatalf("expected reserved name error, got %v", err)
	}
}

func TestRunExplicitEnvAndPolicy(t *testing.T) {
	f := newFixture(t)
	req := f.request()
	req.Policy = envname.PolicyBranchMapped
	req.Trigger = envname.Trigger{Event: envname.EventRelease, Ref: "main", Action: envname.ReleaseActionReleased}

	result, err := f.workflow.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Env != "testing" {
		t.Fatalf("branch policy ignores releases, got %q", result.Env)
	}

	f = newFixture(t)
	req = f.request()
	req.Env = "production"
	req.Trigger = envname.Trigger{Event: envname.EventManual, Ref: "hotfix"}
	result, err = f.workflow.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Env != "production" {
		t.Fatalf("explicit env ignored: %q", result.Env)
	}
}

func TestRunSkipBuildAndVerify(t *testing.T) {
	f := newFixture(t)
	req := f.request()
	req.SkipBuild = true
	req.SkipVerify = true
	req.Trigger = envname.Trigger{Event: envname.EventPush, Ref: "main"}

	result, err := f.workflow.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !reflect.DeepEqual(result.Skipped, []string{StepBuild, StepVerify}) {
		t.Fatalf("unexpected skipped: %v", result.Skipped)
	}
	if f.rec.events[0] != "copy:.core_backend.env" {
		t.Fatalf("unexpected events: %v", f.rec.events)
	}
}

func TestRunDryRunExecutesNothing(t *testing.T) {
	f := newFixture(t)
	req := f.request()
	req.DryRun = true
	req.StatePath = filepath.Join(f.root, ".deployctl", "state.yaml")
	req.Trigger = envname.Trigger{Event: envname.EventPush, Ref: "main"}

	result, err := f.workflow.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if len(f.rec.events) != 0 || len(f.ledger.records) != 0 {
		t.Fatalf("dry run executed collaborators: %v %v", f.rec.events, f.ledger.records)
	}
	if result.Script == "" || len(result.Copies) != 1 || len(result.AllTags()) != 2 {
		t.Fatalf("dry run should plan script, copies, and tags: %+v", result)
	}
	wantSkipped := []string{StepSecrets, StepEnvFiles, StepBuild, StepVerify, StepHealth, StepRecord}
	if !reflect.DeepEqual(result.Skipped, wantSkipped) {
		t.Fatalf("unexpected skipped: %v", result.Skipped)
	}
	if _, err := os.Stat(filepath.Join(f.root, "deploy", ".core_backend.env")); !os.IsNotExist(err) {
		t.Fatalf("dry run wrote env files")
	}
	if _, err := os.Stat(req.StatePath); !os.IsNotExist(err) {
		t.Fatalf("dry run wrote state")
	}
}

func TestRunRecordFailureIsBestEffort(t *testing.T) {
	f := newFixture(t)
	f.ledger.err = errors.New("dynamodb unavailable")
	req := f.request()
	req.Trigger = envname.Trigger{Event: envname.EventPush, Ref: "main"}

	if _, err := f.workflow.Run(context.Background(), req); err != nil {
		t.Fatalf("record failure must not fail the run: %v", err)
	}
	if len(f.ui.warns) == 0 || !strings.Contains(f.ui.warns[len(f.ui.warns)-1], "dynamodb unavailable") {
		t.Fatalf("expected warning, got %v", f.ui.warns)
	}
}

func TestRunWithoutLedgerSkipsRecord(t *testing.T) {
	f := newFixture(t)
	f.workflow.Ledger = nil
	req := f.request()
	req.Trigger = envname.Trigger{Event: envname.EventPush, Ref: "main"}

	result, err := f.workflow.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Skipped[len(result.Skipped)-1] != StepRecord {
		t.Fatalf("record should be skipped: %v", result.Skipped)
	}
}

func TestRunMissingCopySource(t *testing.T) {
	f := newFixture(t)
	f.stack.Files = append(f.stack.Files, config.File{Source: "deploy/Caddyfile", Destination: "Caddyfile"})
	req := f.request()
	req.Trigger = envname.Trigger{Event: envname.EventPush, Ref: "main"}

	_, err := f.workflow.Run(context.Background(), req)
	if FailedStep(err) != StepCopyFiles || !strings.Contains(err.Error(), "Caddyfile") {
		t.Fatalf("expected copy failure, got %v", err)
	}
}

func TestRunMissingCollaborator(t *testing.T) {
	f := newFixture(t)
	f.workflow.Executor = nil
	req := f.request()
	req.Trigger = envname.Trigger{Event: envname.EventPush, Ref: "main"}

	_, err := f.workflow.Run(context.Background(), req)
	if !errors.Is(err, errExecutorNotConfigured) {
		t.Fatalf("expected errExecutorNotConfigured, got %v", err)
	}
}

func TestStepError(t *testing.T) {
	inner := errors.New("boom")
	err := error(&StepError{Step: StepHealth, Err: inner})
	if !errors.Is(err, inner) || err.Error() != "step health failed: boom" {
		t.Fatalf("unexpected step error: %v", err)
	}
	if FailedStep(inner) != "" {
		t.Fatalf("plain errors have no step")
	}
}
