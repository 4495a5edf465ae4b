// Package tui is the terminal monitor for one dispatch run.
package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/fleet/internal/monitor"
)

const (
	DefaultInterval = 2 * time.Second
	fetchTimeout    = 10 * time.Second
)

// StatusSource computes run reports. *monitor.Monitor satisfies it.
type StatusSource interface {
	RunStatus(ctx context.Context, runName string) (*monitor.RunStatus, error)
}

// Options configures the monitor model.
type Options struct {
	Run      string
	Source   StatusSource
	Interval time.Duration   // Poll period (default 2s)
	Changes  <-chan struct{} // Optional file-change notifications
	Now      func() time.Time
}

type statusMsg struct {
	status *monitor.RunStatus
	err    error
}

type tickMsg time.Time

type changeMsg struct{}

// Model is the root Bubble Tea model for the run monitor.
type Model struct {
	opts        Options
	summaryPane SummaryPaneModel
	workerPane  WorkerPaneModel
	fetching    bool // A status request is in flight
	stale       bool // A change arrived while fetching
	width       int
	height      int
	quitting    bool
}

// New creates a monitor model. The first refresh starts with Init.
func New(opts Options) Model {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return Model{
		opts:        opts,
		summaryPane: NewSummaryPaneModel(opts.Run),
		workerPane:  NewWorkerPaneModel(),
		fetching:    true,
	}
}

// Init fetches the first report and starts the poll and change loops.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), tick(m.opts.Interval), waitForChange(m.opts.Changes))
}

func (m Model) fetch() tea.Cmd {
	src, run := m.opts.Source, m.opts.Run
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		rs, err := src.RunStatus(ctx, run)
		return statusMsg{status: rs, err: err}
	}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// waitForChange returns a command that waits for the next file change.
func waitForChange(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil // watcher closed
		}
		return changeMsg{}
	}
}

// requestRefresh starts a fetch unless one is in flight, in which case the
// next result triggers another.
func (m *Model) requestRefresh() tea.Cmd {
	if m.fetching {
		m.stale = true
		return nil
	}
	m.fetching = true
	return m.fetch()
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit
		case KeyTab, KeyShiftTab:
			m.workerPane.ToggleFocus()
		case KeyRefresh:
			cmds = append(cmds, m.requestRefresh())
		default:
			var cmd tea.Cmd
			m.workerPane, cmd = m.workerPane.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()

	case tickMsg:
		cmds = append(cmds, tick(m.opts.Interval), m.requestRefresh())

	case changeMsg:
		cmds = append(cmds, waitForChange(m.opts.Changes), m.requestRefresh())

	case statusMsg:
		m.fetching = false
		m.summaryPane.SetStatus(msg.status, msg.err, m.opts.Now())
		if msg.err == nil && msg.status != nil {
			m.workerPane.SetWorkers(msg.status.Workers)
		}
		m.computeLayout()
		if m.stale {
			m.stale = false
			cmds = append(cmds, m.requestRefresh())
		}
	}

	return m, tea.Batch(cmds...)
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return fmt.Sprintf("Loading run %s...", m.opts.Run)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.summaryPane.View(),
		m.workerPane.View(),
		HelpView(),
	)
}

// computeLayout sizes the panes for the current window and report.
func (m *Model) computeLayout() {
	if m.width == 0 || m.height == 0 {
		return
	}
	available := m.height - 1 // help bar
	summaryHeight := min(m.summaryPane.WantHeight(), max(4, available/3))
	m.summaryPane.SetSize(m.width, summaryHeight)
	m.workerPane.SetSize(m.width, max(8, available-summaryHeight))
}
