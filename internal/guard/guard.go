// Package guard decides, before launch, whether an automated worker should be
// diverted to manual handling instead of spending tokens on a doomed run.
package guard

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aristath/fleet/internal/config"
)

const (
	ProbeFileName    = ".orch_write_probe.tmp"
	DefaultScanDepth = 20   // Run directories inspected, newest first
	DefaultTailBytes = 9000 // Bytes read from the end of a prior log
)

const (
	ReasonReadOnlyHistory = "previous run indicates read-only/policy block; skipped to avoid token waste"
	ReasonQuotaHistory    = "previous run indicates quota/approval block; skipped to avoid token waste"
)

// Decision is the outcome of evaluating one worker.
type Decision struct {
	Manual bool
	Reason string
}

// Evaluator inspects the workspace and prior run logs under RunsRoot.
type Evaluator struct {
	RunsRoot  string
	ScanDepth int
	TailBytes int64
}

// New returns an Evaluator with the default scan depth and tail size.
func New(runsRoot string) *Evaluator {
	return &Evaluator{
		RunsRoot:  runsRoot,
		ScanDepth: DefaultScanDepth,
		TailBytes: DefaultTailBytes,
	}
}

// Evaluate applies the write-capability guard (codex only) and the history
// guard to w. Neither runs in dry-run mode.
func (e *Evaluator) Evaluate(cfg *config.OrchestratorConfig, w config.WorkerSpec, workdir string, dryRun bool) Decision {
	if dryRun {
		return Decision{}
	}

	if w.Engine == config.EngineCodex && cfg.ReadOnlyGuard(w) {
		if err := ProbeWrite(workdir); err != nil {
			return Decision{Manual: true, Reason: fmt.Sprintf("workspace write probe failed: %v", err)}
		}
	}

	if !cfg.HistoryReadOnlyGuard(w) {
		return Decision{}
	}
	hint := e.LatestLogTail(w.TaskID)
	if LooksReadOnly(hint) && !w.AllowReadOnlyRetry {
		return Decision{Manual: true, Reason: ReasonReadOnlyHistory}
	}
	if w.Engine == config.EngineClaudeCLI && LooksQuotaBlocked(hint) && !w.AllowTokenRetry {
		return Decision{Manual: true, Reason: ReasonQuotaHistory}
	}
	return Decision{}
}

// ProbeWrite creates dir if needed and writes then removes a probe file in it.
func ProbeWrite(dir string) error {
	probe := filepath.Join(dir, ProbeFileName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(probe, []byte("probe"), 0o644); err != nil {
		os.Remove(probe)
		return err
	}
	if err := os.Remove(probe); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// LatestLogTail returns the tail of the newest <taskID>.log found among the
// ScanDepth most recently modified run directories, or "" when there is none.
func (e *Evaluator) LatestLogTail(taskID string) string {
	entries, err := os.ReadDir(e.RunsRoot)
	if err != nil {
		return ""
	}

	type runDir struct {
		path  string
		mtime int64
	}
	var dirs []runDir
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		dirs = append(dirs, runDir{filepath.Join(e.RunsRoot, entry.Name()), info.ModTime().UnixNano()})
	}
	sort.SliceStable(dirs, func(i, j int) bool { return dirs[i].mtime > dirs[j].mtime })

	depth := e.ScanDepth
	if depth <= 0 {
		depth = DefaultScanDepth
	}
	if len(dirs) > depth {
		dirs = dirs[:depth]
	}
	for _, d := range dirs {
		logPath := filepath.Join(d.path, taskID+".log")
		if _, err := os.Stat(logPath); err == nil {
			return tailFile(logPath, e.TailBytes)
		}
	}
	return ""
}

func tailFile(path string, maxBytes int64) string {
	if maxBytes <= 0 {
		maxBytes = DefaultTailBytes
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ""
	}
	offset := info.Size() - maxBytes
	if offset < 0 {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return ""
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return ""
	}
	return strings.ToValidUTF8(string(data), "�")
}

// LooksReadOnly reports whether log text shows the sandbox refusing writes.
func LooksReadOnly(text string) bool {
	t := strings.ToLower(text)
	if t == "" {
		return false
	}
	return (strings.Contains(t, "sandbox: read-only") && strings.Contains(t, "blocked by policy")) ||
		strings.Contains(t, "writes are blocked by policy") ||
		(strings.Contains(t, "read-only policy") && strings.Contains(t, "cannot"))
}

var quotaMarkers = []string{
	"would you like to proceed?",
	"you've hit your limit",
	"hit your limit",
	"rate limit",
	"quota",
	"insufficient credits",
	"approval required",
}

// LooksQuotaBlocked reports whether log text shows a usage limit or an
// interactive approval prompt the unattended run could not answer.
func LooksQuotaBlocked(text string) bool {
	t := strings.ToLower(text)
	for _, m := range quotaMarkers {
		if strings.Contains(t, m) {
			return true
		}
	}
	return false
}
