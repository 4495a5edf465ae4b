package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/reflow/truncate"

	"github.com/aristath/fleet/internal/monitor"
)

const plainActivityWidth = 60

// RenderPlain renders a run report as static text, for non-interactive
// output.
func RenderPlain(rs *monitor.RunStatus) string {
	var b strings.Builder
	s := rs.Summary
	fmt.Fprintf(&b, "run %s  orch %s  model %s %s\n", rs.Run, rs.OrchID, rs.Model, rs.ReasoningEffort)
	fmt.Fprintf(&b, "running %d/%d  avg cpu %.1f%%  mem %.1f MB  tokens %d\n",
		s.Running, s.Total, s.AvgCPU, s.MemMB, s.TokensTotal)

	t := ltable.New().
		Border(lipgloss.NormalBorder()).
		Headers("TASK", "OWNER", "ROLE", "ENGINE", "PID", "STATE", "PROG", "TOKENS", "CPU%", "RSS MB", "ACTIVITY")
	for _, w := range rs.Workers {
		pid, tokens := "-", "-"
		if w.PID != nil {
			pid = fmt.Sprintf("%d", *w.PID)
		}
		if w.Tokens.Total != nil {
			tokens = fmt.Sprintf("%d", *w.Tokens.Total)
		}
		activity := truncate.StringWithTail(w.Activity, plainActivityWidth, "…")
		if w.StateHint != "" {
			activity += " (" + w.StateHint + ")"
		}
		t.Row(w.TaskID, w.Owner, w.Role, w.Engine, pid, string(w.State),
			fmt.Sprintf("%d%%", w.Progress), tokens,
			fmt.Sprintf("%.1f", w.Metrics.CPUPercent), fmt.Sprintf("%.1f", w.Metrics.RSSMB), activity)
	}
	b.WriteString(t.String())
	b.WriteString("\n")

	if len(rs.RoleSummary) > 0 {
		b.WriteString("roles:")
		for _, r := range rs.RoleSummary {
			fmt.Fprintf(&b, "  %s %.1f%% (x%d)", r.Role, r.Progress, r.Workers)
		}
		b.WriteString("\n")
	}
	for _, e := range rs.Manual {
		fmt.Fprintf(&b, "manual: %s (%s) %s\n", e.TaskID, e.Engine, e.Reason)
	}
	for _, e := range rs.Failed {
		fmt.Fprintf(&b, "failed: %s (%s) %s\n", e.TaskID, e.Engine, e.Error)
	}
	return b.String()
}
