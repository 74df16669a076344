// Where: internal/infra/remote/gcloud.go
// What: Remote execution on a compute instance through gcloud.
// Why: The instance is reached over the provider-managed SSH channel, no keys on the runner.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aaqstack/deployctl/internal/infra/runner"
	"go.uber.org/zap"
)

var errInstanceRequired = errors.New("instance name and zone are required")

// Target identifies the instance.
type Target struct {
	Instance string
	Zone     string
	Project  string
}

func (t Target) validate() error {
	if strings.TrimSpace(t.Instance) == "" || strings.TrimSpace(t.Zone) == "" {
		return errInstanceRequired
	}
	return nil
}

// Executor copies files to and runs scripts on the instance.
type Executor interface {
	Copy(ctx context.Context, src, dst string) error
	Run(ctx context.Context, script string) error
}

// GcloudExecutor drives gcloud compute scp and ssh.
type GcloudExecutor struct {
	Target Target
	Runner runner.CommandRunner
	Dir    string
	Logger *zap.Logger
}

// NewGcloudExecutor returns an executor for target.
func NewGcloudExecutor(target Target, r runner.CommandRunner, dir string, logger *zap.Logger) *GcloudExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GcloudExecutor{Target: target, Runner: r, Dir: dir, Logger: logger}
}

// Copy uploads src to dst on the instance.
func (e *GcloudExecutor) Copy(ctx context.Context, src, dst string) error {
	if e.Runner == nil {
		return runner.ErrRunnerNil
	}
	args, err := e.CopyArgs(src, dst)
	if err != nil {
		return err
	}
	e.Logger.Debug("copying file", zap.String("source", src), zap.String("destination", dst))
	if err := runner.RunWithOutputError(ctx, e.Runner, e.Dir, "gcloud", args...); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return nil
}

// Run executes script on the instance. Output is streamed by the runner.
func (e *GcloudExecutor) Run(ctx context.Context, script string) error {
	if e.Runner == nil {
		return runner.ErrRunnerNil
	}
	args, err := e.RunArgs(script)
	if err != nil {
		return err
	}
	e.Logger.Debug("running remote script", zap.String("instance", e.Target.Instance))
	if err := e.Runner.Run(ctx, e.Dir, "gcloud", args...); err != nil {
		return fmt.Errorf("remote run on %s: %w", e.Target.Instance, err)
	}
	return nil
}

// CopyArgs returns the gcloud arguments for Copy.
func (e *GcloudExecutor) CopyArgs(src, dst string) ([]string, error) {
	if err := e.Target.validate(); err != nil {
		return nil, err
	}
	if src == "" || dst == "" {
		return nil, errors.New("copy source and destination are required")
	}
	args := []string{"compute", "scp", "--zone", e.Target.Zone}
	args = append(args, e.projectArgs()...)
	return append(args, src, e.Target.Instance+":"+dst), nil
}

// RunArgs returns the gcloud arguments for Run.
func (e *GcloudExecutor) RunArgs(script string) ([]string, error) {
	if err := e.Target.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(script) == "" {
		return nil, errors.New("remote script is empty")
	}
	args := []string{"compute", "ssh", e.Target.Instance, "--zone", e.Target.Zone}
	args = append(args, e.projectArgs()...)
	return append(args, "--command", script), nil
}

func (e *GcloudExecutor) projectArgs() []string {
	if e.Target.Project == "" {
		return nil
	}
	return []string{"--project", e.Target.Project}
}
