// Where: internal/command/app.go
// What: CLI entrypoint logic.
// Why: Provide a testable command dispatcher with injected collaborators.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aaqstack/deployctl/internal/domain/envname"
	"github.com/aaqstack/deployctl/internal/infra/ci"
	"github.com/aaqstack/deployctl/internal/infra/config"
	"github.com/aaqstack/deployctl/internal/infra/history"
	"github.com/aaqstack/deployctl/internal/infra/interaction"
	"github.com/aaqstack/deployctl/internal/infra/logging"
	"github.com/aaqstack/deployctl/internal/infra/runner"
	"github.com/aaqstack/deployctl/internal/infra/secrets"
	"github.com/aaqstack/deployctl/internal/infra/ui"
	"github.com/aaqstack/deployctl/internal/meta"
	"github.com/aaqstack/deployctl/internal/usecase/deploy"
	"github.com/aaqstack/deployctl/internal/version"
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Dependencies holds every collaborator a command may need. Factories are
// called lazily so commands that never touch a backend never construct it.
type Dependencies struct {
	Out              io.Writer
	ErrOut           io.Writer
	Getwd            func() (string, error)
	Getenv           func(string) string
	Detector         TriggerDetector
	Runner           runner.CommandRunner
	NewSecretStore   SecretStoreFactory
	NewVerifier      VerifierFactory
	NewHistory       HistoryFactory
	NewHealthChecker HealthCheckerFactory
	Confirmer        interaction.Confirmer
	Interactive      func() bool
	Now              func() time.Time
}

type (
	// TriggerDetector builds a trigger from flags, CI env, and local git.
	TriggerDetector interface {
		Detect(dir string, overrides ci.Overrides) (envname.Trigger, error)
	}

	SecretStoreFactory func(ctx context.Context, cfg config.Secrets, root string, logger *zap.Logger) (secrets.Store, error)

	VerifierFactory func(ctx context.Context, registryHost string, logger *zap.Logger) (deploy.ImageVerifier, io.Closer, error)

	HistoryFactory func(ctx context.Context, project string, cfg config.History) (History, error)

	HealthCheckerFactory func(wait, timeout time.Duration, logger *zap.Logger) deploy.HealthChecker

	// HistoryLedger is the ledger as seen by commands.
	HistoryLedger interface {
		deploy.Ledger
		Recent(ctx context.Context, env string, limit int) ([]history.Record, error)
		EnsureTable(ctx context.Context) (bool, error)
	}

	// HistoryArchiver is the script archive as seen by commands.
	HistoryArchiver interface {
		deploy.Archiver
		EnsureBucket(ctx context.Context) (bool, error)
	}

	// History groups the optional ledger backends. Either may be nil.
	History struct {
		Ledger   HistoryLedger
		Archiver HistoryArchiver
	}
)

// CLI defines the command-line interface structure parsed by Kong.
type CLI struct {
	Config  string `short:"c" default:"deploy/stack.yaml" help:"Path to the stack config"`
	EnvFile string `name:"env-file" help:"Path to a .env file loaded before running"`
	Verbose bool   `short:"v" help:"Debug logging"`
	NoEmoji bool   `name:"no-emoji" help:"Disable emoji output"`

	Env     EnvCmd     `cmd:"" help:"Resolve and inspect environments"`
	Secrets SecretsCmd `cmd:"" help:"Read environment secrets"`
	Image   ImageCmd   `cmd:"" help:"Build and verify images"`
	Remote  RemoteCmd  `cmd:"" help:"Inspect remote execution"`
	Deploy  DeployCmd  `cmd:"" help:"Run the deploy pipeline"`
	Health  HealthCmd  `cmd:"" help:"Check the deployed endpoint"`
	History HistoryCmd `cmd:"" help:"Inspect the deploy ledger"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// VersionCmd prints the version.
type VersionCmd struct{}

// runContext is what a handler sees for one invocation.
type runContext struct {
	ctx     context.Context
	cli     CLI
	deps    Dependencies
	out     io.Writer
	console *ui.Console
	logger  *zap.Logger
}

type commandHandler func(*runContext) error

// Run parses args, dispatches to the matching handler, and returns the exit
// code: 0 on success, 1 on any error.
func Run(ctx context.Context, args []string, deps Dependencies) int {
	deps = withDefaults(deps)
	out := deps.Out

	if len(args) == 0 {
		return runNoArgs(out)
	}

	cli := CLI{}
	parser, err := kong.New(&cli,
		kong.Name(meta.AppName),
		kong.Description("Resolve the target environment and deploy the stack to it."),
		kong.Writers(out, deps.ErrOut),
	)
	if err != nil {
		return exitWithError(deps.ErrOut, err)
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		return exitWithError(deps.ErrOut, err)
	}

	console := ui.NewWithEmoji(out, !cli.NoEmoji)
	loadEnvFile(cli.EnvFile, ui.NewWithEmoji(deps.ErrOut, !cli.NoEmoji))

	rc := &runContext{
		ctx:     ctx,
		cli:     cli,
		deps:    deps,
		out:     out,
		console: console,
		logger:  logging.New(deps.ErrOut, cli.Verbose),
	}
	defer func() { _ = rc.logger.Sync() }()

	handler, ok := handlers()[kctx.Command()]
	if !ok {
		return exitWithError(deps.ErrOut, fmt.Errorf("unknown command %q", kctx.Command()))
	}
	if err := handler(rc); err != nil {
		return exitWithError(deps.ErrOut, err)
	}
	return 0
}

func handlers() map[string]commandHandler {
	return map[string]commandHandler{
		"env resolve":       runEnvResolve,
		"env detect":        runEnvDetect,
		"env files":         runEnvFiles,
		"secrets get <key>": runSecretsGet,
		"secrets list":      runSecretsList,
		"image build":       runImageBuild,
		"image verify":      runImageVerify,
		"remote script":     runRemoteScript,
		"deploy":            runDeploy,
		"health":            runHealth,
		"history list":      runHistoryList,
		"history init":      runHistoryInit,
		"version":           runVersion,
	}
}

func withDefaults(deps Dependencies) Dependencies {
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	if deps.ErrOut == nil {
		deps.ErrOut = os.Stderr
	}
	if deps.Getwd == nil {
		deps.Getwd = os.Getwd
	}
	if deps.Getenv == nil {
		deps.Getenv = os.Getenv
	}
	if deps.Detector == nil {
		deps.Detector = ci.NewDetector()
	}
	if deps.NewSecretStore == nil {
		deps.NewSecretStore = NewSecretStore
	}
	if deps.Confirmer == nil {
		deps.Confirmer = interaction.HuhConfirmer{}
	}
	if deps.Interactive == nil {
		deps.Interactive = interaction.Interactive
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return deps
}

// loadEnvFile loads the given env file, or .env in the working directory when present.
func loadEnvFile(path string, console *ui.Console) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			console.Warn(fmt.Sprintf("failed to load env file %s: %v", path, err))
		}
		return
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			console.Warn(fmt.Sprintf("failed to load .env: %v", err))
		}
	}
}

func runVersion(rc *runContext) error {
	fmt.Fprintln(rc.out, version.GetVersion())
	return nil
}

func runNoArgs(out io.Writer) int {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintf(out, "  %s deploy [--ref <name>] [--event <kind>] [--dry-run]\n", meta.AppName)
	fmt.Fprintf(out, "  %s env resolve [--policy <branch|release>]\n", meta.AppName)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Try: %s --help\n", meta.AppName)
	return 0
}

// exitWithError prints err to errOut, naming the failed step when there is
// one, and returns 1. Stdout stays clean for callers capturing it.
func exitWithError(errOut io.Writer, err error) int {
	msg := err.Error()
	if step := deploy.FailedStep(err); step != "" {
		var stepErr *deploy.StepError
		if errors.As(err, &stepErr) {
			msg = fmt.Sprintf("%s: %v", step, stepErr.Err)
		}
	}
	fmt.Fprintf(errOut, "✗ %s\n", strings.TrimSpace(msg))
	return 1
}
