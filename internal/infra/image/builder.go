// Where: internal/infra/image/builder.go
// What: Multi-platform image build and push via docker buildx.
// Why: Images are published for every configured platform in one invocation.
package image

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aaqstack/deployctl/internal/infra/runner"
	"go.uber.org/zap"
)

var (
	errContextRequired   = errors.New("build context is required")
	errTagsRequired      = errors.New("at least one tag is required")
	errPlatformsRequired = errors.New("at least one platform is required")
)

// BuildRequest describes one image build.
type BuildRequest struct {
	Name       string
	Context    string
	Dockerfile string
	Platforms  []string
	Tags       []string
	Push       bool
}

// Builder runs docker buildx through a CommandRunner.
type Builder struct {
	Runner runner.CommandRunner
	Dir    string
	Logger *zap.Logger
}

// NewBuilder returns a Builder running commands from dir.
func NewBuilder(r runner.CommandRunner, dir string, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{Runner: r, Dir: dir, Logger: logger}
}

// Build builds and, when requested, pushes the image.
func (b *Builder) Build(ctx context.Context, req BuildRequest) error {
	if b == nil || b.Runner == nil {
		return runner.ErrRunnerNil
	}
	args, err := BuildArgs(req)
	if err != nil {
		return err
	}
	b.Logger.Info("building image",
		zap.String("image", req.Name),
		zap.Strings("tags", req.Tags),
		zap.Strings("platforms", req.Platforms),
	)
	if err := b.Runner.Run(ctx, b.Dir, "docker", args...); err != nil {
		return fmt.Errorf("build image %s: %w", req.Name, err)
	}
	return nil
}

// BuildArgs returns the docker arguments for req.
func BuildArgs(req BuildRequest) ([]string, error) {
	if strings.TrimSpace(req.Context) == "" {
		return nil, errContextRequired
	}
	if len(req.Tags) == 0 {
		return nil, errTagsRequired
	}
	if len(req.Platforms) == 0 {
		return nil, errPlatformsRequired
	}
	args := []string{"buildx", "build", "--platform", strings.Join(req.Platforms, ",")}
	if req.Push {
		args = append(args, "--push")
	}
	if req.Dockerfile != "" {
		args = append(args, "-f", req.Dockerfile)
	}
	for _, tag := range req.Tags {
		args = append(args, "-t", tag)
	}
	return append(args, req.Context), nil
}
