// Where: internal/command/secrets.go
// What: secrets get and secrets list commands, plus the store factory.
// Why: Inspect what a deploy to an environment will read without deploying.
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/aaqstack/deployctl/internal/infra/config"
	"github.com/aaqstack/deployctl/internal/infra/secrets"
	"go.uber.org/zap"
)

// secretCacheTTL bounds how long one run reuses a secret value.
const secretCacheTTL = 5 * time.Minute

type (
	SecretsCmd struct {
		Get  SecretsGetCmd  `cmd:"" help:"Print one secret value"`
		List SecretsListCmd `cmd:"" help:"List secret IDs in the environment namespace"`
	}

	SecretsGetCmd struct {
		TriggerFlags `embed:""`
		EnvFlag      `embed:""`
		Key          string `arg:"" help:"Secret key, e.g. openai-api-key"`
	}

	SecretsListCmd struct {
		TriggerFlags `embed:""`
		EnvFlag      `embed:""`
	}
)

// NewSecretStore builds the Store selected by cfg.Provider.
func NewSecretStore(ctx context.Context, cfg config.Secrets, root string, logger *zap.Logger) (secrets.Store, error) {
	switch cfg.Provider {
	case config.ProviderAWS:
		store, err := secrets.NewAWSStore(ctx, cfg.Region, logger)
		if err != nil {
			return nil, err
		}
		return secrets.NewCached(store, secretCacheTTL), nil
	case config.ProviderDotenv:
		if cfg.File == "" {
			return nil, fmt.Errorf("secrets.file is required for the %s provider", config.ProviderDotenv)
		}
		return secrets.NewDotenvStore(resolvePath(root, cfg.File))
	default:
		return nil, fmt.Errorf("unknown secrets provider %q", cfg.Provider)
	}
}

func runSecretsGet(rc *runContext) error {
	cmd := rc.cli.Secrets.Get
	p, err := rc.loadProject()
	if err != nil {
		return err
	}
	res, err := rc.requireEnv(p, cmd.TriggerFlags, cmd.Env)
	if err != nil {
		return err
	}
	store, err := rc.secretStore(p)
	if err != nil {
		return err
	}
	id := secrets.ID(res.namespace, cmd.Key)
	value, err := store.Get(rc.ctx, id)
	if err != nil {
		return fmt.Errorf("secret %s: %w", id, err)
	}
	fmt.Fprintln(rc.out, value)
	return nil
}

func runSecretsList(rc *runContext) error {
	cmd := rc.cli.Secrets.List
	p, err := rc.loadProject()
	if err != nil {
		return err
	}
	res, err := rc.requireEnv(p, cmd.TriggerFlags, cmd.Env)
	if err != nil {
		return err
	}
	store, err := rc.secretStore(p)
	if err != nil {
		return err
	}
	ids, err := store.List(rc.ctx, res.namespace+"-")
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintln(rc.out, id)
	}
	return nil
}
