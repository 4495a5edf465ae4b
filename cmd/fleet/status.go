package main

import (
	"encoding/json"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"

	"github.com/aristath/fleet/internal/manifest"
	"github.com/aristath/fleet/internal/monitor"
	"github.com/aristath/fleet/internal/tui"
)

func newMonitor(g *Globals, a *app) *monitor.Monitor {
	return monitor.New(monitor.Config{RunsRoot: g.Runs, Logger: a.logger})
}

func (a *app) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	a.printf("%s\n", data)
	return nil
}

// Run prints one status report.
func (c *StatusCmd) Run(g *Globals, a *app) error {
	rs, err := newMonitor(g, a).RunStatus(a.ctx, c.RunName)
	if err != nil {
		return err
	}
	if c.JSON {
		return a.printJSON(rs)
	}
	a.printf("%s", tui.RenderPlain(rs))
	return nil
}

// Run lists runs, newest first.
func (c *RunsCmd) Run(g *Globals, a *app) error {
	runs, err := newMonitor(g, a).ListRuns(c.Orch)
	if err != nil {
		return err
	}
	if c.JSON {
		return a.printJSON(runs)
	}
	if len(runs) == 0 {
		a.printf("no runs under %s\n", g.Runs)
		return nil
	}
	t := ltable.New().
		Border(lipgloss.NormalBorder()).
		Headers("RUN", "ORCH", "RUNNING", "MODIFIED")
	for _, r := range runs {
		t.Row(r.Name, r.OrchID, fmt.Sprintf("%d/%d", r.Running, r.Total), r.ModTime.Format(manifest.TimeLayout))
	}
	a.printf("%s\n", t.String())
	return nil
}

// Run lists the documents of every worker in a run.
func (c *DocsCmd) Run(g *Globals, a *app) error {
	docs, err := newMonitor(g, a).Documents(c.RunName, c.Task)
	if err != nil {
		return err
	}
	if c.JSON {
		return a.printJSON(docs)
	}
	for _, td := range docs {
		a.printf("%s  %s  %s  %s\n", td.TaskID, td.Owner, td.Role, td.Engine)
		for _, d := range td.Documents {
			a.printf("  %-8s %-24s %8d  %s\n", d.Kind, d.Label, d.Size, d.Path)
		}
	}
	return nil
}

// Run starts the terminal monitor. Without a terminal on stdout it prints
// one report instead.
func (c *WatchCmd) Run(g *Globals, a *app) error {
	mon := newMonitor(g, a)
	f, ok := a.stdout.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		rs, err := mon.RunStatus(a.ctx, c.RunName)
		if err != nil {
			return err
		}
		a.printf("%s", tui.RenderPlain(rs))
		return nil
	}

	files := append([]string{manifest.Path(mon.RunDir(c.RunName))}, mon.ReportDocPaths()...)
	watcher, err := tui.NewWatcher(a.logger, files...)
	if err != nil {
		a.logger.Printf("[WARN] file watch disabled: %v", err)
	}
	var changes <-chan struct{}
	if watcher != nil {
		defer watcher.Close()
		changes = watcher.Changes()
	}

	model := tui.New(tui.Options{
		Run:      c.RunName,
		Source:   mon,
		Interval: c.Interval,
		Changes:  changes,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(a.ctx))
	if _, err := p.Run(); err != nil && a.ctx.Err() == nil {
		return err
	}
	return nil
}
