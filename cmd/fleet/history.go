package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"

	"github.com/aristath/fleet/internal/history"
	"github.com/aristath/fleet/internal/manifest"
)

// Run lists recorded runs, or the launches of one run.
func (c *HistoryCmd) Run(g *Globals, a *app) error {
	path := g.historyPath()
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no history at %s: %w", path, err)
	}
	store, err := history.NewSQLiteStore(a.ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()

	if c.RunID != "" {
		launches, err := store.Launches(a.ctx, c.RunID)
		if err != nil {
			return err
		}
		t := ltable.New().
			Border(lipgloss.NormalBorder()).
			Headers("TASK", "ENGINE", "OUTCOME", "PID", "EXIT", "AT", "DETAIL")
		for _, l := range launches {
			t.Row(l.TaskID, l.Engine, l.Outcome, optInt(l.PID), optInt(l.ExitCode),
				l.RecordedAt.Local().Format(manifest.TimeLayout), l.Detail)
		}
		a.printf("%s\n", t.String())
		return nil
	}

	runs, err := store.ListRuns(a.ctx, c.Orch, c.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		a.printf("no runs recorded\n")
		return nil
	}
	t := ltable.New().
		Border(lipgloss.NormalBorder()).
		Headers("RUN ID", "ORCH", "CREATED", "MODEL", "STARTED", "MANUAL", "FAILED", "EXITED", "DRY")
	for _, r := range runs {
		dry := ""
		if r.DryRun {
			dry = "yes"
		}
		t.Row(r.RunID, r.OrchID, r.CreatedAt.Local().Format(manifest.TimeLayout), r.Model,
			fmt.Sprint(r.Started), fmt.Sprint(r.Manual), fmt.Sprint(r.Failed), fmt.Sprint(r.Exited), dry)
	}
	a.printf("%s\n", t.String())
	return nil
}

func optInt(p *int) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprint(*p)
}
