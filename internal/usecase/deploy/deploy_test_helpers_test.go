package deploy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aaqstack/deployctl/internal/infra/config"
	"github.com/aaqstack/deployctl/internal/infra/history"
	"github.com/aaqstack/deployctl/internal/infra/image"
	"github.com/aaqstack/deployctl/internal/infra/secrets"
	"github.com/aaqstack/deployctl/internal/infra/ui"
)

const testStack = `
project: aaq
policy: release
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
  keys: [openai-api-key]
services:
  - name: core_backend
    container: aaq-core-backend
    image: backend
    env_file: .core_backend.env
    network: aaq
  - name: cache
    container: aaq-redis
    image: redis:7.2
    network: aaq
files:
  - source: deploy/.core_backend.env
    destination: .core_backend.env
health:
  wait: 1s
history:
  table: aaq-deploys
`

type recorder struct {
	events []string
}

func (r *recorder) add(event string) {
	r.events = append(r.events, event)
}

type fakeBuilder struct {
	rec  *recorder
	reqs []image.BuildRequest
	err  error
}

func (f *fakeBuilder) Build(_ context.Context, req image.BuildRequest) error {
	f.rec.add("build:" + req.Name)
	f.reqs = append(f.reqs, req)
	return f.err
}

type fakeVerifier struct {
	rec  *recorder
	refs []string
	err  error
}

func (f *fakeVerifier) Verify(_ context.Context, refs []string, _ []string) ([]image.Verification, error) {
	f.rec.add("verify")
	f.refs = refs
	if f.err != nil {
		return nil, f.err
	}
	out := make([]image.Verification, 0, len(refs))
	for _, ref := range refs {
		out = append(out, image.Verification{Ref: ref, Digest: "sha256:abc"})
	}
	return out, nil
}

type fakeExecutor struct {
	rec     *recorder
	copies  []Copy
	scripts []string
	runErr  error
}

func (f *fakeExecutor) Copy(_ context.Context, src, dst string) error {
	f.rec.add("copy:" + filepath.Base(src))
	f.copies = append(f.copies, Copy{Source: src, Destination: dst})
	return nil
}

func (f *fakeExecutor) Run(_ context.Context, script string) error {
	f.rec.add("run")
	f.scripts = append(f.scripts, script)
	return f.runErr
}

type fakeChecker struct {
	rec  *recorder
	urls []string
	err  error
}

func (f *fakeChecker) Check(_ context.Context, url string) error {
	f.rec.add("health")
	f.urls = append(f.urls, url)
	return f.err
}

type fakeLedger struct {
	records []history.Record
	err     error
}

func (f *fakeLedger) Record(_ context.Context, rec history.Record) error {
	f.records = append(f.records, rec)
	return f.err
}

type fakeArchiver struct {
	scripts []string
}

func (f *fakeArchiver) Archive(_ context.Context, env string, at time.Time, script string) (string, error) {
	f.scripts = append(f.scripts, script)
	return history.Key("aaq", env, at), nil
}

type testUI struct {
	steps []string
	warns []string
}

func (u *testUI) Info(string) {}
func (u *testUI) Success(string) {}
func (u *testUI) Warn(msg string) { u.warns = append(u.warns, msg) }
func (u *testUI) Step(_, _ int, name string) { u.steps = append(u.steps, name) }
func (u *testUI) Block(string, string, []ui.KeyValue) {}

type fixture struct {
	root     string
	rec      *recorder
	builder  *fakeBuilder
	verifier *fakeVerifier
	executor *fakeExecutor
	checker  *fakeChecker
	ledger   *fakeLedger
	archiver *fakeArchiver
	ui       *testUI
	workflow Workflow
	stack    config.Stack
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "deploy"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	template := "DOMAIN=localhost\nOPENAI_API_KEY=\nLOG_LEVEL=info\n"
	if err := os.WriteFile(filepath.Join(root, "deploy", "template.core_backend.env"), []byte(template), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	stack, err := config.ParseStack([]byte(testStack))
	if err != nil {
		t.Fatalf("parse stack: %v", err)
	}

	rec := &recorder{}
	f := &fixture{
		root:     root,
		rec:      rec,
		builder:  &fakeBuilder{rec: rec},
		verifier: &fakeVerifier{rec: rec},
		executor: &fakeExecutor{rec: rec},
		checker:  &fakeChecker{rec: rec},
		ledger:   &fakeLedger{},
		archiver: &fakeArchiver{},
		ui:       &testUI{},
		stack:    stack,
	}
	f.workflow = Workflow{
		Secrets: secrets.NewMapStore(map[string]string{
			"aaq-testing-domain":            "testing.aaq.example.org",
			"aaq-testing-openai-api-key":    "sk-testing",
			"aaq-production-domain":         "aaq.example.org",
			"aaq-production-openai-api-key": "sk-production",
		}),
		Builder:       f.builder,
		Verifier:      f.verifier,
		Executor:      f.executor,
		Health:        f.checker,
		Ledger:        f.ledger,
		Archiver:      f.archiver,
		UserInterface: f.ui,
		Now:           func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) },
	}
	return f
}

func (f *fixture) request() Request {
	return Request{
		Stack: f.stack,
		Root:  f.root,
	}
}
