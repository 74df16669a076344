// Where: internal/command/remote.go
// What: remote script command.
// Why: Review exactly what will run on the instance before a deploy.
package command

import (
	"fmt"

	"github.com/aaqstack/deployctl/internal/domain/remote"
)

type (
	RemoteCmd struct {
		Script RemoteScriptCmd `cmd:"" help:"Print the deploy script for the current trigger"`
	}

	RemoteScriptCmd struct {
		TriggerFlags `embed:""`
		EnvFlag      `embed:""`
	}
)

func runRemoteScript(rc *runContext) error {
	cmd := rc.cli.Remote.Script
	p, err := rc.loadProject()
	if err != nil {
		return err
	}
	res, err := rc.requireEnv(p, cmd.TriggerFlags, cmd.Env)
	if err != nil {
		return err
	}
	script, err := remote.RenderScript(remote.ScriptInput{
		Env:      res.env,
		Ref:      res.trigger.Ref,
		Workdir:  p.stack.Instance.Workdir,
		Services: p.stack.StackServices(res.trigger.Ref),
	})
	if err != nil {
		return err
	}
	fmt.Fprint(rc.out, script)
	return nil
}
