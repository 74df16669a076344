// Where: cmd/deployctl/cli.go
// What: CLI dependency wiring helpers.
// Why: Centralize construction of the real backends for testability.
package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/aaqstack/deployctl/internal/command"
	"github.com/aaqstack/deployctl/internal/infra/config"
	"github.com/aaqstack/deployctl/internal/infra/envutil"
	"github.com/aaqstack/deployctl/internal/infra/health"
	"github.com/aaqstack/deployctl/internal/infra/history"
	"github.com/aaqstack/deployctl/internal/infra/image"
	"github.com/aaqstack/deployctl/internal/infra/runner"
	"github.com/aaqstack/deployctl/internal/meta"
	"github.com/aaqstack/deployctl/internal/usecase/deploy"
	"go.uber.org/zap"
)

var (
	newDockerClient = func() (image.DistributionCloser, error) { return image.NewDockerClient() }
	newDynamoClient = func(ctx context.Context, opts history.ClientOptions) (history.DynamoAPI, error) {
		return history.NewDynamoClient(ctx, opts)
	}
	newS3Client = func(ctx context.Context, opts history.ClientOptions) (history.S3API, error) {
		return history.NewS3Client(ctx, opts)
	}
)

// buildDependencies constructs the runtime collaborators. Backends that
// need network or credentials are built lazily by the factories.
func buildDependencies() command.Dependencies {
	return command.Dependencies{
		Out:              os.Stdout,
		ErrOut:           os.Stderr,
		Runner:           runner.ExecRunner{Stdout: os.Stderr, Stderr: os.Stderr},
		NewVerifier:      newVerifier,
		NewHistory:       newHistory,
		NewHealthChecker: newHealthChecker,
	}
}

// newVerifier connects to the local Docker engine and encodes registry
// credentials from DEPLOYCTL_REGISTRY_USERNAME/PASSWORD when set.
func newVerifier(_ context.Context, registryHost string, logger *zap.Logger) (deploy.ImageVerifier, io.Closer, error) {
	auth, err := image.RegistryAuth(
		registryHost,
		envutil.GetHostEnv(meta.EnvVarRegistryUsername),
		envutil.GetHostEnv(meta.EnvVarRegistryPassword),
	)
	if err != nil {
		return nil, nil, err
	}
	client, err := newDockerClient()
	if err != nil {
		return nil, nil, err
	}
	return image.NewVerifier(client, auth, logger), client, nil
}

// newHistory builds the ledger and archive for whichever of table and
// bucket are configured.
func newHistory(ctx context.Context, project string, cfg config.History) (command.History, error) {
	opts := history.ClientOptions{
		Region:    cfg.Region,
		Endpoint:  envutil.GetHostEnv(meta.EnvVarHistoryEndpoint),
		AccessKey: envutil.GetHostEnv(meta.EnvVarHistoryAccessKey),
		SecretKey: envutil.GetHostEnv(meta.EnvVarHistorySecretKey),
	}
	var out command.History
	if cfg.Table != "" {
		api, err := newDynamoClient(ctx, opts)
		if err != nil {
			return command.History{}, err
		}
		ledger, err := history.NewLedger(api, cfg.Table)
		if err != nil {
			return command.History{}, err
		}
		out.Ledger = ledger
	}
	if cfg.Bucket != "" {
		api, err := newS3Client(ctx, opts)
		if err != nil {
			return command.History{}, err
		}
		archiver, err := history.NewArchiver(api, cfg.Bucket, project, cfg.Region)
		if err != nil {
			return command.History{}, err
		}
		out.Archiver = archiver
	}
	return out, nil
}

func newHealthChecker(wait, timeout time.Duration, logger *zap.Logger) deploy.HealthChecker {
	return health.NewChecker(wait, timeout, logger)
}
