// Where: internal/command/test_helpers_test.go
// What: Fakes and a temp-project harness for command tests.
// Why: Run the CLI end to end without Docker, cloud, or network.
package command

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aaqstack/deployctl/internal/domain/envname"
	"github.com/aaqstack/deployctl/internal/infra/ci"
	"github.com/aaqstack/deployctl/internal/infra/config"
	"github.com/aaqstack/deployctl/internal/infra/history"
	"github.com/aaqstack/deployctl/internal/infra/image"
	"github.com/aaqstack/deployctl/internal/usecase/deploy"
	"go.uber.org/zap"
)

const testStackYAML = `
project: aaq
registry:
  host: ghcr.io
  organization: idinsight
images:
  - name: backend
    repository: aaq-backend
    context: core_backend
instance:
  name: aaq-app
  zone: us-central1-a
  workdir: /opt/aaq
secrets:
  provider: dotenv
  file: secrets.env
  keys: [openai-api-key]
services:
  - name: core_backend
    container: aaq-core-backend
    image: backend
    env_file: .core_backend.env
files:
  - source: deploy/.core_backend.env
    destination: .core_backend.env
history:
  table: aaq-deploys
`

const testSecrets = `aaq-testing-domain=testing.aaq.example.org
aaq-testing-openai-api-key=sk-testing
aaq-production-domain=aaq.example.org
aaq-production-openai-api-key=sk-production
`

type fakeDetector struct {
	trigger envname.Trigger
	err     error
	seen    []ci.Overrides
}

// Detect applies overrides over the canned trigger, like the real detector.
func (f *fakeDetector) Detect(_ string, overrides ci.Overrides) (envname.Trigger, error) {
	f.seen = append(f.seen, overrides)
	if f.err != nil {
		return envname.Trigger{}, f.err
	}
	trigger := f.trigger
	if overrides.Event != "" {
		event, err := envname.ParseEventKind(overrides.Event)
		if err != nil {
			return envname.Trigger{}, err
		}
		trigger.Event = event
	}
	if overrides.Ref != "" {
		trigger.Ref = overrides.Ref
	}
	if overrides.Action != "" {
		trigger.Action = overrides.Action
	}
	return trigger, nil
}

type fakeRunner struct {
	calls [][]string
	err   error
}

func (f *fakeRunner) Run(_ context.Context, _ string, name string, args ...string) error {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.err
}

func (f *fakeRunner) RunOutput(_ context.Context, _ string, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return nil, f.err
}

type fakeChecker struct {
	urls []string
	wait time.Duration
	err  error
}

func (f *fakeChecker) Check(_ context.Context, url string) error {
	f.urls = append(f.urls, url)
	return f.err
}

type fakeVerifier struct {
	refs []string
}

func (f *fakeVerifier) Verify(_ context.Context, refs []string, _ []string) ([]image.Verification, error) {
	f.refs = append(f.refs, refs...)
	out := make([]image.Verification, 0, len(refs))
	for _, ref := range refs {
		out = append(out, image.Verification{Ref: ref, Digest: "sha256:feed"})
	}
	return out, nil
}

type fakeLedger struct {
	records []history.Record
	created bool
}

func (f *fakeLedger) Record(_ context.Context, rec history.Record) error {
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeLedger) Recent(_ context.Context, env string, limit int) ([]history.Record, error) {
	var out []history.Record
	for i := len(f.records) - 1; i >= 0 && len(out) < limit; i-- {
		if f.records[i].Env == env {
			out = append(out, f.records[i])
		}
	}
	return out, nil
}

func (f *fakeLedger) EnsureTable(context.Context) (bool, error) {
	if f.created {
		return false, nil
	}
	f.created = true
	return true, nil
}

type fakeConfirmer struct {
	answer bool
	titles []string
}

func (f *fakeConfirmer) Confirm(title, _ string) (bool, error) {
	f.titles = append(f.titles, title)
	return f.answer, nil
}

type harness struct {
	root     string
	out      bytes.Buffer
	errOut   bytes.Buffer
	env      map[string]string
	detector *fakeDetector
	runner   *fakeRunner
	checker  *fakeChecker
	verifier *fakeVerifier
	ledger   *fakeLedger
	confirm  *fakeConfirmer
	tty      bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "deploy", "stack.yaml"), testStackYAML)
	mustWrite(t, filepath.Join(root, "deploy", "template.core_backend.env"), "DOMAIN=localhost\nOPENAI_API_KEY=\n")
	mustWrite(t, filepath.Join(root, "secrets.env"), testSecrets)
	if err := os.Mkdir(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatalf("mkdir .git: %v", err)
	}
	return &harness{
		root:     root,
		env:      map[string]string{},
		detector: &fakeDetector{trigger: envname.Trigger{Event: envname.EventPush, Ref: "main"}},
		runner:   &fakeRunner{},
		checker:  &fakeChecker{},
		verifier: &fakeVerifier{},
		ledger:   &fakeLedger{},
		confirm:  &fakeConfirmer{},
	}
}

func (h *harness) deps() Dependencies {
	return Dependencies{
		Out:      &h.out,
		ErrOut:   &h.errOut,
		Getwd:    func() (string, error) { return h.root, nil },
		Getenv:   func(key string) string { return h.env[key] },
		Detector: h.detector,
		Runner:   h.runner,
		NewVerifier: func(context.Context, string, *zap.Logger) (deploy.ImageVerifier, io.Closer, error) {
			return h.verifier, nil, nil
		},
		NewHistory: func(context.Context, string, config.History) (History, error) {
			return History{Ledger: h.ledger}, nil
		},
		NewHealthChecker: func(wait, _ time.Duration, _ *zap.Logger) deploy.HealthChecker {
			h.checker.wait = wait
			return h.checker
		},
		Confirmer:   h.confirm,
		Interactive: func() bool { return h.tty },
		Now: func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func (h *harness) run(args ...string) int {
	return Run(context.Background(), args, h.deps())
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
