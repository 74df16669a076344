// Where: internal/command/history.go
// What: history list and history init commands.
// Why: Answer "what is deployed where" and provision the ledger backends.
package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aaqstack/deployctl/internal/infra/ui"
)

var errHistoryDisabled = errors.New("history is not configured (set history.table in the stack config)")

type (
	HistoryCmd struct {
		List HistoryListCmd `cmd:"" help:"Show recent deploys to an environment"`
		Init HistoryInitCmd `cmd:"" help:"Create the ledger table and archive bucket when missing"`
	}

	HistoryListCmd struct {
		TriggerFlags `embed:""`
		EnvFlag      `embed:""`
		Limit        int `short:"n" default:"10" help:"Maximum records to show"`
	}

	HistoryInitCmd struct{}
)

// history builds the ledger backends for p. A stack without history
// settings yields an empty History and no error.
func (rc *runContext) history(p project) (History, error) {
	cfg := p.stack.History
	if cfg.Table == "" && cfg.Bucket == "" {
		return History{}, nil
	}
	if rc.deps.NewHistory == nil {
		return History{}, errors.New("history backend is not available")
	}
	return rc.deps.NewHistory(rc.ctx, p.stack.Project, cfg)
}

func runHistoryList(rc *runContext) error {
	cmd := rc.cli.History.List
	p, err := rc.loadProject()
	if err != nil {
		return err
	}
	hist, err := rc.history(p)
	if err != nil {
		return err
	}
	if hist.Ledger == nil {
		return errHistoryDisabled
	}
	res, err := rc.requireEnv(p, cmd.TriggerFlags, cmd.Env)
	if err != nil {
		return err
	}
	records, err := hist.Ledger.Recent(rc.ctx, res.env, cmd.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		rc.console.Info(fmt.Sprintf("no deploys recorded for %s", res.env))
		return nil
	}
	rows := make([]ui.KeyValue, 0, len(records))
	for _, rec := range records {
		summary := fmt.Sprintf("%s %s (%s)", rec.Status, rec.Ref, rec.Event)
		if rec.FailedStep != "" {
			summary += " at " + rec.FailedStep
		}
		rows = append(rows, ui.KeyValue{Key: rec.DeployedAt.Format("2006-01-02 15:04:05"), Value: summary})
	}
	rc.console.Block("📜", fmt.Sprintf("Deploys to %s", res.env), rows)
	return nil
}

func runHistoryInit(rc *runContext) error {
	p, err := rc.loadProject()
	if err != nil {
		return err
	}
	hist, err := rc.history(p)
	if err != nil {
		return err
	}
	if hist.Ledger == nil && hist.Archiver == nil {
		return errHistoryDisabled
	}
	var created []string
	if hist.Ledger != nil {
		ok, err := hist.Ledger.EnsureTable(rc.ctx)
		if err != nil {
			return err
		}
		if ok {
			created = append(created, "table "+p.stack.History.Table)
		}
	}
	if hist.Archiver != nil {
		ok, err := hist.Archiver.EnsureBucket(rc.ctx)
		if err != nil {
			return err
		}
		if ok {
			created = append(created, "bucket "+p.stack.History.Bucket)
		}
	}
	if len(created) == 0 {
		rc.console.Success("history backends already exist")
		return nil
	}
	rc.console.Success("created " + strings.Join(created, ", "))
	return nil
}
