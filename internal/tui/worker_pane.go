package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/aristath/fleet/internal/monitor"
)

// Fixed column widths; activity takes what is left.
var workerColumns = []table.Column{
	{Title: "Task", Width: 14},
	{Title: "Owner", Width: 10},
	{Title: "Role", Width: 16},
	{Title: "Engine", Width: 11},
	{Title: "State", Width: 8},
	{Title: "Prog", Width: 5},
	{Title: "Tokens", Width: 9},
	{Title: "CPU%", Width: 6},
	{Title: "RSS MB", Width: 7},
}

const minActivityWidth = 12

// WorkerPaneModel is the worker table with the selected worker's details
// and log tail underneath.
type WorkerPaneModel struct {
	table       table.Model
	logView     viewport.Model
	bar         progress.Model
	workers     []monitor.WorkerStatus
	activityCol int
	width       int
	height      int
	logFocused  bool
	shownTask   string
	shownTail   string
}

// NewWorkerPaneModel creates an empty worker pane.
func NewWorkerPaneModel() WorkerPaneModel {
	cols := append([]table.Column(nil), workerColumns...)
	cols = append(cols, table.Column{Title: "Activity", Width: minActivityWidth})
	t := table.New(
		table.WithColumns(cols),
		table.WithFocused(true),
		table.WithHeight(5),
	)
	return WorkerPaneModel{
		table:       t,
		logView:     viewport.New(20, 5),
		bar:         progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
		activityCol: minActivityWidth,
	}
}

// Update routes keys to the table or, when focused, the log viewport.
func (m WorkerPaneModel) Update(msg tea.Msg) (WorkerPaneModel, tea.Cmd) {
	var cmd tea.Cmd
	if m.logFocused {
		m.logView, cmd = m.logView.Update(msg)
		return m, cmd
	}
	m.table, cmd = m.table.Update(msg)
	m.syncLog()
	return m, cmd
}

// SetWorkers replaces the rows, keeping the cursor on the same task when it
// still exists.
func (m *WorkerPaneModel) SetWorkers(workers []monitor.WorkerStatus) {
	selected := m.SelectedTaskID()
	m.workers = workers
	m.table.SetRows(m.rows())

	cursor := 0
	for i, w := range workers {
		if w.TaskID == selected {
			cursor = i
			break
		}
	}
	if len(workers) > 0 {
		m.table.SetCursor(cursor)
	}
	m.syncLog()
}

func (m WorkerPaneModel) rows() []table.Row {
	rows := make([]table.Row, 0, len(m.workers))
	for _, w := range m.workers {
		tokens := "-"
		if w.Tokens.Total != nil {
			tokens = fmt.Sprintf("%d", *w.Tokens.Total)
		}
		rows = append(rows, table.Row{
			w.TaskID,
			w.Owner,
			w.Role,
			w.Engine,
			string(w.State),
			fmt.Sprintf("%d%%", w.Progress),
			tokens,
			fmt.Sprintf("%.1f", w.Metrics.CPUPercent),
			fmt.Sprintf("%.1f", w.Metrics.RSSMB),
			truncate.StringWithTail(w.Activity, uint(m.activityCol), "…"),
		})
	}
	return rows
}

// SelectedTaskID returns the task under the cursor, or "".
func (m WorkerPaneModel) SelectedTaskID() string {
	if w, ok := m.selected(); ok {
		return w.TaskID
	}
	return ""
}

func (m WorkerPaneModel) selected() (monitor.WorkerStatus, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.workers) {
		return monitor.WorkerStatus{}, false
	}
	return m.workers[i], true
}

// syncLog shows the selected worker's log tail, following the bottom unless
// the user scrolled away from it.
func (m *WorkerPaneModel) syncLog() {
	w, ok := m.selected()
	if !ok {
		m.logView.SetContent("No workers started.")
		m.shownTask, m.shownTail = "", ""
		return
	}
	if w.TaskID == m.shownTask && w.LogTail == m.shownTail {
		return
	}
	follow := w.TaskID != m.shownTask || m.logView.AtBottom()
	content := w.LogTail
	if content == "" {
		content = "(no log)"
	}
	m.logView.SetContent(content)
	if follow {
		m.logView.GotoBottom()
	}
	m.shownTask, m.shownTail = w.TaskID, w.LogTail
}

// View renders the pane.
func (m WorkerPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	tableStyle, logStyle := StyleFocusedBorder, StyleUnfocusedBorder
	if m.logFocused {
		tableStyle, logStyle = logStyle, tableStyle
	}

	top := tableStyle.Width(m.width - 2).Render(m.table.View())
	detail := lipgloss.JoinVertical(lipgloss.Left, m.detailView(), m.logView.View())
	bottom := logStyle.Width(m.width - 2).Render(detail)
	return lipgloss.JoinVertical(lipgloss.Left, top, bottom)
}

func (m WorkerPaneModel) detailView() string {
	w, ok := m.selected()
	if !ok {
		return StyleTitle.Render("Log")
	}
	head := fmt.Sprintf("%s  %s  %s", StyleTitle.Render(w.TaskID), StateStyle(w.State).Render(string(w.State)), m.bar.ViewAs(float64(w.Progress)/100))
	var lines []string
	lines = append(lines, head)
	if w.StateHint != "" {
		lines = append(lines, StyleHint.Render(w.StateHint))
	}
	if w.LogFile != "" {
		lines = append(lines, StyleHelp.Render(truncate.StringWithTail(w.LogFile, uint(max(10, m.width-6)), "…")))
	}
	return strings.Join(lines, "\n")
}

// SetSize lays out the table and the log area within w x h.
func (m *WorkerPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h

	fixed := 0
	for _, c := range workerColumns {
		fixed += c.Width + 2 // cell padding
	}
	m.activityCol = max(minActivityWidth, w-4-fixed)
	cols := append([]table.Column(nil), workerColumns...)
	cols = append(cols, table.Column{Title: "Activity", Width: m.activityCol})
	m.table.SetColumns(cols)
	m.table.SetWidth(max(20, w-2))

	// Table gets up to half the height; header and borders take 4 rows.
	tableRows := max(3, min(len(m.workers)+1, h/2-4))
	m.table.SetHeight(tableRows + 1)
	logHeight := max(3, h-(tableRows+1)-4-3-3)
	m.logView.Width = max(20, w-4)
	m.logView.Height = logHeight
	m.bar.Width = max(10, min(30, w-40))
	m.table.SetRows(m.rows())
}

// ToggleFocus switches keyboard focus between the table and the log.
func (m *WorkerPaneModel) ToggleFocus() {
	m.logFocused = !m.logFocused
	if m.logFocused {
		m.table.Blur()
	} else {
		m.table.Focus()
	}
}

// LogFocused reports whether the log viewport has focus.
func (m WorkerPaneModel) LogFocused() bool { return m.logFocused }
