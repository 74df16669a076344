// Where: internal/command/health.go
// What: health command.
// Why: Re-run the post-deploy check on demand.
package command

import (
	"errors"
	"fmt"

	"github.com/aaqstack/deployctl/internal/infra/health"
	"github.com/aaqstack/deployctl/internal/infra/secrets"
)

// HealthCmd checks the endpoint of the resolved environment.
type HealthCmd struct {
	TriggerFlags `embed:""`
	EnvFlag      `embed:""`
	URL          string `name:"url" help:"Probe this URL instead of the environment's domain"`
	Wait         bool   `help:"Wait the configured delay before probing"`
}

func runHealth(rc *runContext) error {
	cmd := rc.cli.Health
	p, err := rc.loadProject()
	if err != nil {
		return err
	}
	if rc.deps.NewHealthChecker == nil {
		return errors.New("health checks are not available")
	}

	url := cmd.URL
	if url == "" {
		res, err := rc.requireEnv(p, cmd.TriggerFlags, cmd.Env)
		if err != nil {
			return err
		}
		store, err := rc.secretStore(p)
		if err != nil {
			return err
		}
		id := secrets.ID(res.namespace, p.stack.Secrets.DomainKey)
		domain, err := store.Get(rc.ctx, id)
		if err != nil {
			return fmt.Errorf("secret %s: %w", id, err)
		}
		if url, err = health.URL(p.stack.Health.Scheme, domain, p.stack.Health.Path); err != nil {
			return err
		}
	}

	wait := p.stack.Health.Wait
	if !cmd.Wait {
		wait = 0
	}
	checker := rc.deps.NewHealthChecker(wait, p.stack.Health.Timeout, rc.logger)
	if err := checker.Check(rc.ctx, url); err != nil {
		return err
	}
	rc.console.Success(fmt.Sprintf("%s is healthy", url))
	return nil
}
