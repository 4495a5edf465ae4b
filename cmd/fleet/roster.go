package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aristath/fleet/internal/config"
	"github.com/aristath/fleet/internal/delegate"
	"github.com/aristath/fleet/internal/dispatch"
	"github.com/aristath/fleet/internal/events"
	"github.com/aristath/fleet/internal/history"
)

// Run dispatches the roster, recording the run in the history database
// unless disabled. History failures never stop a dispatch.
func (c *DispatchCmd) Run(g *Globals, a *app) error {
	roster, err := g.loadRoster()
	if err != nil {
		return err
	}

	bus := events.NewBus()
	var recorded chan struct{}
	if !c.NoHistory {
		store, err := history.NewSQLiteStore(a.ctx, g.historyPath())
		if err != nil {
			a.logger.Printf("[WARN] history disabled: %v", err)
		} else {
			defer store.Close()
			recorded = make(chan struct{})
			ch := bus.SubscribeAll(0)
			go func() {
				defer close(recorded)
				history.NewRecorder(store, a.logger).Run(a.ctx, ch)
			}()
		}
	}

	promptRoot := c.PromptRoot
	if promptRoot == "" {
		promptRoot = filepath.Dir(g.Tasks)
	}
	d := dispatch.New(dispatch.Config{Logger: a.logger, Bus: bus})
	res, err := d.Run(a.ctx, roster, dispatch.Options{
		TasksFile:       g.Tasks,
		RunsRoot:        g.Runs,
		PromptRoot:      promptRoot,
		Workspace:       c.Workspace,
		Model:           c.Model,
		ReasoningEffort: c.ReasoningEffort,
		DryRun:          c.DryRun,
		Wait:            c.Wait,
	})
	bus.Close()
	if recorded != nil {
		<-recorded
	}
	if err != nil {
		return err
	}

	m := res.Manifest
	a.printf("run %s\n", res.RunID)
	a.printf("manifest %s\n", res.ManifestPath)
	a.printf("started %d  manual %d  failed %d\n", len(m.Started), len(m.Manual), len(m.Failed))
	return nil
}

// Run selects workers for the request and saves the updated roster.
func (c *DelegateCmd) Run(g *Globals, a *app) error {
	roster, err := g.loadRoster()
	if err != nil {
		return err
	}
	lo, hi := delegate.NormalizeBounds(c.Min, c.Max)
	updated, sel := delegate.Apply(roster, delegate.Options{
		Request:  c.Request,
		Min:      lo,
		Max:      hi,
		AutoRole: c.AutoRole,
	})

	if sel.Kept {
		a.printf("[PM] empty request; keeping current selection\n")
	} else {
		intent := make([]string, len(sel.Intent))
		for i, t := range sel.Intent {
			intent[i] = string(t)
		}
		a.printf("[PM] intent: %s\n", orNone(strings.Join(intent, ",")))
		a.printf("[PM] target: %d (min %d, max %d)\n", sel.Target, lo, hi)
		for _, id := range sel.Selected {
			a.printf("[PM] %s score=%d\n", id, sel.Scores[id])
		}
	}
	a.printf("[PM] enabled %d: %s\n", updated.Defaults.PMLastSelectedCount, orNone(strings.Join(updated.Defaults.PMLastSelected, ", ")))

	if c.DryRun {
		return nil
	}
	if err := config.Save(updated, g.Tasks); err != nil {
		return err
	}
	a.logger.Printf("[INFO] roster saved: %s", g.Tasks)
	return nil
}

// Run loads and validates the roster.
func (c *ValidateCmd) Run(g *Globals, a *app) error {
	roster, err := g.loadRoster()
	if err != nil {
		return err
	}
	if err := config.Validate(roster); err != nil {
		return fmt.Errorf("%s: %w", g.Tasks, err)
	}
	enabled := 0
	for _, w := range roster.Workers {
		if w.IsEnabled() {
			enabled++
		}
	}
	a.printf("%s: ok (%d workers, %d enabled)\n", g.Tasks, len(roster.Workers), enabled)
	return nil
}

// Run renumbers task ids and saves the roster.
func (c *RenumberCmd) Run(g *Globals, a *app) error {
	roster, err := g.loadRoster()
	if err != nil {
		return err
	}
	old := make([]string, len(roster.Workers))
	for i, w := range roster.Workers {
		old[i] = w.TaskID
	}
	config.Renumber(roster)
	for i, w := range roster.Workers {
		a.printf("%s -> %s\n", orNone(old[i]), w.TaskID)
	}
	if c.DryRun {
		return nil
	}
	return config.Save(roster, g.Tasks)
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
