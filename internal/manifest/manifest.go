// Package manifest defines the per-run record written by the dispatcher and
// read by the monitor.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aristath/fleet/internal/config"
	"github.com/aristath/fleet/internal/fsutil"
)

const (
	FileName    = "manifest.json"
	StampLayout = "20060102_150405"     // Batch stamp, also used in run dir names
	TimeLayout  = "2006-01-02 15:04:05" // created_at / updated_at
)

// Entry describes a worker the dispatcher launched (or would have, in dry-run)
// or failed to launch.
type Entry struct {
	TaskID     string        `json:"task_id"`
	Owner      string        `json:"owner"`
	Role       string        `json:"role"`
	Engine     config.Engine `json:"engine"`
	Command    []string      `json:"command"`
	PID        *int          `json:"pid"` // nil in dry-run and on failure
	LogFile    string        `json:"log_file"`
	Workspace  string        `json:"workspace"`
	PromptFile string        `json:"prompt_file"`
	Repo       string        `json:"repo"`
	Error      string        `json:"error,omitempty"` // Set on failed entries
}

// ManualEntry is a worker assigned to a human, with the reason when it was
// diverted from an automated engine.
type ManualEntry struct {
	config.WorkerSpec
	Reason string `json:"reason,omitempty"`
}

// Manifest is the durable record of one dispatch invocation.
type Manifest struct {
	OrchID          string        `json:"orch_id"`
	RunID           string        `json:"run_id"`
	Timestamp       string        `json:"timestamp"`
	CreatedAt       string        `json:"created_at"`
	UpdatedAt       string        `json:"updated_at"`
	TasksFile       string        `json:"tasks_file"`
	Workspace       string        `json:"workspace"`
	Model           string        `json:"model"`
	ReasoningEffort string        `json:"reasoning_effort"`
	ApprovalNote    string        `json:"approval_note"`
	SearchNote      string        `json:"search_note"`
	DryRun          bool          `json:"dry_run"`
	Started         []Entry       `json:"started"`
	Manual          []ManualEntry `json:"manual"`
	Failed          []Entry       `json:"failed"`
}

// Path returns the manifest location inside a run directory.
func Path(runDir string) string {
	return filepath.Join(runDir, FileName)
}

// Load reads a manifest. Missing lists decode as empty.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	m.ensureLists()
	return &m, nil
}

func (m *Manifest) ensureLists() {
	if m.Started == nil {
		m.Started = []Entry{}
	}
	if m.Manual == nil {
		m.Manual = []ManualEntry{}
	}
	if m.Failed == nil {
		m.Failed = []Entry{}
	}
}

// StartedEntry returns the started entry for taskID.
func (m *Manifest) StartedEntry(taskID string) (Entry, bool) {
	for _, e := range m.Started {
		if e.TaskID == taskID {
			return e, true
		}
	}
	return Entry{}, false
}

// Writer owns a manifest file during dispatch. Every mutation rewrites the
// whole document atomically and bumps updated_at.
type Writer struct {
	mu   sync.Mutex
	path string
	m    *Manifest
	now  func() time.Time
}

// NewWriter prepares m for writing to path. Nothing is written until the
// first Touch or Add call.
func NewWriter(path string, m *Manifest, now func() time.Time) *Writer {
	if now == nil {
		now = time.Now
	}
	m.ensureLists()
	if m.CreatedAt == "" {
		m.CreatedAt = now().Format(TimeLayout)
	}
	return &Writer{path: path, m: m, now: now}
}

// Path returns the file the writer persists to.
func (w *Writer) Path() string { return w.path }

// Touch updates updated_at and persists.
func (w *Writer) Touch() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flush()
}

func (w *Writer) AddStarted(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.m.Started = append(w.m.Started, e)
	return w.flush()
}

func (w *Writer) AddManual(e ManualEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.m.Manual = append(w.m.Manual, e)
	return w.flush()
}

func (w *Writer) AddFailed(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.m.Failed = append(w.m.Failed, e)
	return w.flush()
}

// Snapshot returns a copy of the current manifest.
func (w *Writer) Snapshot() Manifest {
	w.mu.Lock()
	defer w.mu.Unlock()
	cp := *w.m
	cp.Started = append([]Entry(nil), w.m.Started...)
	cp.Manual = append([]ManualEntry(nil), w.m.Manual...)
	cp.Failed = append([]Entry(nil), w.m.Failed...)
	return cp
}

func (w *Writer) flush() error {
	w.m.UpdatedAt = w.now().Format(TimeLayout)
	if err := fsutil.WriteJSON(w.path, w.m); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}
