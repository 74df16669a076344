// Where: internal/usecase/deploy/deploy.go
// What: Deploy workflow types and collaborators.
// Why: Encapsulate pipeline logic without CLI concerns so every step runs against fakes.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aaqstack/deployctl/internal/domain/envname"
	"github.com/aaqstack/deployctl/internal/infra/config"
	"github.com/aaqstack/deployctl/internal/infra/envfile"
	"github.com/aaqstack/deployctl/internal/infra/history"
	"github.com/aaqstack/deployctl/internal/infra/image"
	"github.com/aaqstack/deployctl/internal/infra/secrets"
	"github.com/aaqstack/deployctl/internal/infra/ui"
	"go.uber.org/zap"
)

// Step names in execution order.
const (
	StepResolveEnv = "resolve-env"
	StepSecrets    = "secrets"
	StepEnvFiles   = "env-files"
	StepBuild      = "build"
	StepVerify     = "verify"
	StepCopyFiles  = "copy-files"
	StepRemoteRun  = "remote-run"
	StepHealth     = "health"
	StepRecord     = "record"
)

// Steps lists every step in order.
var Steps = []string{
	StepResolveEnv,
	StepSecrets,
	StepEnvFiles,
	StepBuild,
	StepVerify,
	StepCopyFiles,
	StepRemoteRun,
	StepHealth,
	StepRecord,
}

var (
	errSecretStoreNotConfigured = errors.New("secret store is not configured")
	errBuilderNotConfigured     = errors.New("image builder is not configured")
	errVerifierNotConfigured    = errors.New("image verifier is not configured")
	errExecutorNotConfigured    = errors.New("remote executor is not configured")
	errCheckerNotConfigured     = errors.New("health checker is not configured")
	errDomainMissing            = errors.New("domain secret is empty")
)

// StepError names the step that halted a run.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// FailedStep returns the step named by a StepError in err's chain.
func FailedStep(err error) string {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Step
	}
	return ""
}

type (
	// ImageBuilder builds and pushes one image.
	ImageBuilder interface {
		Build(ctx context.Context, req image.BuildRequest) error
	}

	// ImageVerifier checks pushed references for the expected platforms.
	ImageVerifier interface {
		Verify(ctx context.Context, refs []string, platforms []string) ([]image.Verification, error)
	}

	// RemoteExecutor copies files to and runs scripts on the instance.
	RemoteExecutor interface {
		Copy(ctx context.Context, src, dst string) error
		Run(ctx context.Context, script string) error
	}

	// HealthChecker probes the deployed endpoint.
	HealthChecker interface {
		Check(ctx context.Context, url string) error
	}

	// Ledger stores run records.
	Ledger interface {
		Record(ctx context.Context, rec history.Record) error
	}

	// Archiver stores rendered scripts.
	Archiver interface {
		Archive(ctx context.Context, env string, at time.Time, script string) (string, error)
	}
)

// Workflow runs the deploy pipeline. Ledger and Archiver are optional.
type Workflow struct {
	Secrets       secrets.Store
	Builder       ImageBuilder
	Verifier      ImageVerifier
	Executor      RemoteExecutor
	Health        HealthChecker
	Ledger        Ledger
	Archiver      Archiver
	UserInterface ui.UserInterface
	Logger        *zap.Logger
	Now           func() time.Time
}

// Request captures the inputs of one run.
type Request struct {
	Stack config.Stack
	// Root is the directory relative paths in Stack resolve against.
	Root    string
	Trigger envname.Trigger
	// Policy overrides Stack.Policy when set.
	Policy envname.Policy
	// Env skips resolution when set.
	Env           string
	Strict        bool
	SkipBuild     bool
	SkipVerify    bool
	ForceEnvFiles bool
	DryRun        bool
	// StatePath, when set, receives the outcome of the run.
	StatePath string
}

// Result describes what a run did or, for dry runs, would do.
type Result struct {
	Env        string
	Namespace  string
	Images     []PlannedImage
	Script     string
	Domain     string
	HealthURL  string
	EnvFiles   []envfile.Result
	Copies     []Copy
	ScriptKey  string
	FailedStep string
	Skipped    []string
}

// PlannedImage is one declared image and the tags it is published under.
type PlannedImage struct {
	Image config.Image
	Tags  []string
}

// Copy is one file transferred to the instance.
type Copy struct {
	Source      string
	Destination string
}

// AllTags returns every tag of every planned image.
func (r Result) AllTags() []string {
	var tags []string
	for _, img := range r.Images {
		tags = append(tags, img.Tags...)
	}
	return tags
}
