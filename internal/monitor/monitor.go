// Package monitor is the read side of a dispatch run: it joins the manifest,
// the roster, the process table and the worker logs into a status report.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/fleet/internal/config"
	"github.com/aristath/fleet/internal/manifest"
	"github.com/aristath/fleet/internal/process"
	"github.com/aristath/fleet/internal/status"
)

const (
	DefaultTailLines   = 400
	DefaultConcurrency = 8

	probeNewest = 20            // Runs always probed for live pids
	probeWithin = 6 * time.Hour // Older runs probed only if touched this recently
)

// ErrManifestNotFound is returned for a run directory without a readable
// manifest.
var ErrManifestNotFound = errors.New("manifest not found")

// DefaultReportDocs are the orchestrator documents scanned for task ids.
var DefaultReportDocs = []string{
	"inbox.md",
	"master_tasks.md",
	"status_report.md",
	"integration.md",
	"results.md",
}

// Config configures a Monitor.
type Config struct {
	RunsRoot    string
	DocsDir     string   // Directory holding report docs (default: parent of RunsRoot)
	ReportDocs  []string // File names under DocsDir (default: DefaultReportDocs)
	Registry    *process.Registry
	Classifier  *status.Classifier
	TailLines   int
	Concurrency int
	Logger      *log.Logger
	Now         func() time.Time

	// LoadRoster reads the roster named in a manifest. Defaults to
	// config.Load; a failing roster only loses the merged worker fields.
	LoadRoster func(path string) (*config.OrchestratorConfig, error)
}

// Monitor computes run status. It is safe for concurrent use.
type Monitor struct {
	cfg  Config
	docs *docCache
}

// New creates a monitor, filling defaults.
func New(cfg Config) *Monitor {
	if cfg.DocsDir == "" {
		cfg.DocsDir = filepath.Dir(filepath.Clean(cfg.RunsRoot))
	}
	if cfg.ReportDocs == nil {
		cfg.ReportDocs = DefaultReportDocs
	}
	if cfg.Registry == nil {
		cfg.Registry = process.NewRegistry(process.RegistryConfig{})
	}
	if cfg.Classifier == nil {
		cfg.Classifier = status.Default()
	}
	if cfg.TailLines <= 0 {
		cfg.TailLines = DefaultTailLines
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.LoadRoster == nil {
		cfg.LoadRoster = config.Load
	}
	return &Monitor{cfg: cfg, docs: newDocCache()}
}

// WorkerStatus is one row of a run report.
type WorkerStatus struct {
	TaskID     string          `json:"task_id"`
	Owner      string          `json:"owner"`
	Role       string          `json:"role"`
	Engine     string          `json:"engine"`
	PID        *int            `json:"pid"`
	State      status.State    `json:"state"`
	Metrics    process.Metrics `json:"metrics"`
	Progress   int             `json:"progress"`
	Tokens     status.Tokens   `json:"tokens"`
	Activity   string          `json:"activity"`
	DocsCount  int             `json:"docs_count"`
	LogFile    string          `json:"log_file"`
	PromptFile string          `json:"prompt_file"`
	StateHint  string          `json:"state_hint"`
	LogTail    string          `json:"-"`
}

// RoleSummary is the mean progress of the workers sharing a role.
type RoleSummary struct {
	Role     string  `json:"role"`
	Progress float64 `json:"progress"`
	Workers  int     `json:"workers"`
}

// Summary aggregates a run.
type Summary struct {
	Running     int     `json:"running"`
	Total       int     `json:"total"`
	AvgCPU      float64 `json:"avg_cpu"`
	MemMB       float64 `json:"mem_mb"`
	TokensTotal int     `json:"tokens_total"`
}

// RunStatus is the full report for one run.
type RunStatus struct {
	Run             string                 `json:"run"`
	OrchID          string                 `json:"orch_id"`
	Model           string                 `json:"model"`
	ReasoningEffort string                 `json:"reasoning_effort"`
	Workers         []WorkerStatus         `json:"workers"`
	Manual          []manifest.ManualEntry `json:"manual"`
	Failed          []manifest.Entry       `json:"failed"`
	RoleSummary     []RoleSummary          `json:"role_summary"`
	Summary         Summary                `json:"summary"`
}

func (m *Monitor) runDir(runName string) string {
	return filepath.Join(m.cfg.RunsRoot, runName)
}

// loadRun reads a run's manifest and the roster workers it refers to.
func (m *Monitor) loadRun(runName string) (*manifest.Manifest, map[string]config.WorkerSpec, error) {
	man, err := manifest.Load(manifest.Path(m.runDir(runName)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("run %s: %w", runName, ErrManifestNotFound)
		}
		return nil, nil, err
	}
	workers := make(map[string]config.WorkerSpec)
	if man.TasksFile != "" {
		roster, err := m.cfg.LoadRoster(man.TasksFile)
		if err != nil {
			m.cfg.Logger.Printf("[WARN] run %s: roster unavailable: %v", runName, err)
		} else {
			for _, w := range roster.Workers {
				workers[w.TaskID] = w
			}
		}
	}
	return man, workers, nil
}

// merged overlays manifest entry fields on the roster worker.
func merged(e manifest.Entry, w config.WorkerSpec) manifest.Entry {
	if e.Owner == "" {
		e.Owner = w.Owner
	}
	if e.Role == "" {
		e.Role = w.Role
	}
	if e.Engine == "" {
		e.Engine = w.Engine
	}
	if e.PromptFile == "" {
		e.PromptFile = w.PromptFile
	}
	return e
}

func (m *Monitor) logPath(runName string, e manifest.Entry) string {
	if e.LogFile != "" {
		return e.LogFile
	}
	return filepath.Join(m.runDir(runName), e.TaskID+".log")
}

// RunStatus builds the report for runName. Workers are evaluated
// concurrently; row order follows the manifest.
func (m *Monitor) RunStatus(ctx context.Context, runName string) (*RunStatus, error) {
	man, roster, err := m.loadRun(runName)
	if err != nil {
		return nil, err
	}

	rows := make([]WorkerStatus, len(man.Started))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)
	for i, entry := range man.Started {
		i, entry := i, entry
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows[i] = m.workerStatus(runName, merged(entry, roster[entry.TaskID]))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rs := &RunStatus{
		Run:             runName,
		OrchID:          man.OrchID,
		Model:           man.Model,
		ReasoningEffort: man.ReasoningEffort,
		Workers:         rows,
		Manual:          man.Manual,
		Failed:          man.Failed,
	}
	rs.Summary, rs.RoleSummary = summarize(rows)
	return rs, nil
}

func (m *Monitor) workerStatus(runName string, e manifest.Entry) WorkerStatus {
	alive := false
	var metrics process.Metrics
	if e.PID != nil {
		alive = m.cfg.Registry.IsAlive(*e.PID)
		metrics = m.cfg.Registry.Metrics(*e.PID)
	}

	docs := m.collectDocs(runName, e)
	tail, err := status.ReadTail(m.logPath(runName, e), m.cfg.TailLines)
	if err != nil && !errors.Is(err, status.ErrNoLog) {
		m.cfg.Logger.Printf("[WARN] %s: %v", e.TaskID, err)
	}
	st := m.cfg.Classifier.Classify(status.Input{
		Alive:    alive,
		Engine:   e.Engine,
		LogTail:  tail,
		DocCount: len(docs),
	})

	return WorkerStatus{
		TaskID:     e.TaskID,
		Owner:      orDash(e.Owner),
		Role:       orDash(e.Role),
		Engine:     orDash(string(e.Engine)),
		PID:        e.PID,
		State:      st.State,
		Metrics:    metrics,
		Progress:   st.Progress,
		Tokens:     st.Tokens,
		Activity:   st.Activity,
		DocsCount:  len(docs),
		LogFile:    e.LogFile,
		PromptFile: e.PromptFile,
		StateHint:  st.Hint,
		LogTail:    tail,
	}
}

func summarize(rows []WorkerStatus) (Summary, []RoleSummary) {
	var s Summary
	var cpu, mem float64
	byRole := make(map[string][]int)
	for _, r := range rows {
		if r.State == status.StateRunning {
			s.Running++
			cpu += r.Metrics.CPUPercent
			mem += r.Metrics.RSSMB
		}
		if r.Tokens.Total != nil {
			s.TokensTotal += *r.Tokens.Total
		}
		byRole[r.Role] = append(byRole[r.Role], r.Progress)
	}
	s.Total = len(rows)
	if s.Running > 0 {
		s.AvgCPU = round1(cpu / float64(s.Running))
	}
	s.MemMB = round1(mem)

	roles := make([]string, 0, len(byRole))
	for role := range byRole {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	out := make([]RoleSummary, 0, len(roles))
	for _, role := range roles {
		vals := byRole[role]
		sum := 0
		for _, v := range vals {
			sum += v
		}
		out = append(out, RoleSummary{
			Role:     role,
			Progress: round1(float64(sum) / float64(len(vals))),
			Workers:  len(vals),
		})
	}
	return s, out
}

// RunInfo is one row of the run listing.
type RunInfo struct {
	Name    string    `json:"name"`
	OrchID  string    `json:"orch_id"`
	ModTime time.Time `json:"mtime"`
	Running int       `json:"running"`
	Total   int       `json:"total"`
}

// ListRuns lists run directories newest first. When orch is set only runs
// of that orchestrator are returned. Live pids are counted for the newest
// runs and recently touched ones; older runs report zero running.
func (m *Monitor) ListRuns(orch string) ([]RunInfo, error) {
	entries, err := os.ReadDir(m.cfg.RunsRoot)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []RunInfo{}, nil
		}
		return nil, fmt.Errorf("reading runs root: %w", err)
	}

	type dir struct {
		name  string
		mtime time.Time
	}
	var dirs []dir
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		dirs = append(dirs, dir{e.Name(), info.ModTime()})
	}
	sort.SliceStable(dirs, func(i, j int) bool { return dirs[i].mtime.After(dirs[j].mtime) })

	want := ""
	if orch != "" {
		want = config.NormalizeOrchID(orch)
	}
	now := m.cfg.Now()
	out := []RunInfo{}
	for i, d := range dirs {
		man, err := manifest.Load(manifest.Path(m.runDir(d.name)))
		if err != nil {
			if want == "" {
				out = append(out, RunInfo{Name: d.name, ModTime: d.mtime})
			}
			continue
		}
		if want != "" && config.NormalizeOrchID(man.OrchID) != want {
			continue
		}
		info := RunInfo{Name: d.name, OrchID: man.OrchID, ModTime: d.mtime, Total: len(man.Started)}
		if i < probeNewest || now.Sub(d.mtime) < probeWithin {
			for _, e := range man.Started {
				if e.PID != nil && m.cfg.Registry.IsAlive(*e.PID) {
					info.Running++
				}
			}
		}
		out = append(out, info)
	}
	return out, nil
}

// TaskDocuments lists the artifacts of one started worker.
type TaskDocuments struct {
	TaskID    string     `json:"task_id"`
	Owner     string     `json:"owner"`
	Role      string     `json:"role"`
	Engine    string     `json:"engine"`
	Documents []Document `json:"documents"`
}

// Documents returns the artifacts of every started worker of runName, or of
// taskID alone when it is non-empty.
func (m *Monitor) Documents(runName, taskID string) ([]TaskDocuments, error) {
	man, roster, err := m.loadRun(runName)
	if err != nil {
		return nil, err
	}
	out := []TaskDocuments{}
	for _, entry := range man.Started {
		if taskID != "" && entry.TaskID != taskID {
			continue
		}
		e := merged(entry, roster[entry.TaskID])
		out = append(out, TaskDocuments{
			TaskID:    e.TaskID,
			Owner:     e.Owner,
			Role:      e.Role,
			Engine:    string(e.Engine),
			Documents: m.collectDocs(runName, e),
		})
	}
	return out, nil
}

// ReportDocPaths returns the report documents the monitor scans, for
// callers that watch them for changes.
func (m *Monitor) ReportDocPaths() []string {
	out := make([]string, len(m.cfg.ReportDocs))
	for i, name := range m.cfg.ReportDocs {
		out[i] = filepath.Join(m.cfg.DocsDir, name)
	}
	return out
}

// RunDir returns the directory of runName.
func (m *Monitor) RunDir(runName string) string { return m.runDir(runName) }

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// docCache keeps report document text keyed by path, invalidated by mtime.
type docCache struct {
	mu      sync.Mutex
	entries map[string]cachedDoc
}

type cachedDoc struct {
	mtime time.Time
	text  string
}

func newDocCache() *docCache {
	return &docCache{entries: make(map[string]cachedDoc)}
}

func (c *docCache) text(path string, mtime time.Time) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[path]; ok && e.mtime.Equal(mtime) {
		return e.text, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	c.entries[path] = cachedDoc{mtime: mtime, text: string(data)}
	return string(data), nil
}
