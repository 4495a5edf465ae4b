package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/muesli/reflow/truncate"

	"github.com/aristath/fleet/internal/monitor"
)

// SummaryPaneModel shows run totals and per-role progress.
type SummaryPaneModel struct {
	run       string
	status    *monitor.RunStatus
	updatedAt time.Time
	err       error
	bar       progress.Model
	width     int
	height    int
}

// NewSummaryPaneModel creates a summary pane for run.
func NewSummaryPaneModel(run string) SummaryPaneModel {
	return SummaryPaneModel{
		run: run,
		bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(20)),
	}
}

// SetStatus replaces the displayed report. A failed refresh keeps the last
// good report and shows the error.
func (m *SummaryPaneModel) SetStatus(rs *monitor.RunStatus, err error, at time.Time) {
	m.err = err
	if err == nil {
		m.status = rs
		m.updatedAt = at
	}
}

// View renders the summary pane.
func (m SummaryPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	inner := max(10, m.width-4)

	var b strings.Builder
	title := fmt.Sprintf("Run %s", m.run)
	if m.status != nil && m.status.OrchID != "" {
		title += fmt.Sprintf(" (%s, %s %s)", m.status.OrchID, m.status.Model, m.status.ReasoningEffort)
	}
	b.WriteString(StyleTitle.Render(truncate.StringWithTail(title, uint(inner), "…")))
	b.WriteString("\n")

	if m.status != nil {
		s := m.status.Summary
		b.WriteString(fmt.Sprintf("running %s/%d  cpu %.1f%%  mem %.1f MB  tokens %d  manual %d  failed %d  updated %s\n",
			StyleStateRunning.Render(fmt.Sprintf("%d", s.Running)), s.Total,
			s.AvgCPU, s.MemMB, s.TokensTotal,
			len(m.status.Manual), len(m.status.Failed),
			m.updatedAt.Format("15:04:05")))

		labelWidth := 20
		bar := m.bar
		bar.Width = max(10, min(40, inner-labelWidth-12))
		for _, r := range m.status.RoleSummary {
			label := truncate.StringWithTail(r.Role, uint(labelWidth), "…")
			b.WriteString(fmt.Sprintf("%-*s %s  x%d\n", labelWidth, label, bar.ViewAs(r.Progress/100), r.Workers))
		}
	}
	if m.err != nil {
		b.WriteString(StyleError.Render(truncate.StringWithTail("refresh failed: "+m.err.Error(), uint(inner), "…")))
		b.WriteString("\n")
	}

	return StyleUnfocusedBorder.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(strings.TrimRight(b.String(), "\n"))
}

// SetSize updates the pane dimensions.
func (m *SummaryPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// WantHeight returns the rows the pane wants for the current report.
func (m SummaryPaneModel) WantHeight() int {
	rows := 2
	if m.status != nil {
		rows += len(m.status.RoleSummary)
	}
	if m.err != nil {
		rows++
	}
	return rows + 2 // border
}
