package dispatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aristath/fleet/internal/config"
)

// RunDirFor returns the run directory a dispatch would use.
func RunDirFor(runsRoot, orchID, stamp string, defaults config.Defaults) string {
	if defaults.SingleRun() {
		return filepath.Join(runsRoot, orchID)
	}
	return filepath.Join(runsRoot, orchID+"_"+stamp)
}

// prepareRunDir creates the run directory. In single-run mode the fixed
// directory is emptied first (when CleanRun) and stamped legacy directories of
// the same orchestrator are removed (when PruneLegacy). Cleanup is best effort.
func prepareRunDir(runsRoot, orchID, stamp string, defaults config.Defaults) (string, error) {
	if err := os.MkdirAll(runsRoot, 0o755); err != nil {
		return "", fmt.Errorf("creating runs root: %w", err)
	}
	runDir := RunDirFor(runsRoot, orchID, stamp, defaults)

	if defaults.SingleRun() && defaults.CleanRun() {
		clearDir(runDir)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run directory: %w", err)
	}
	if defaults.SingleRun() && defaults.PruneLegacy() {
		pruneLegacy(runsRoot, orchID, runDir)
	}
	return runDir, nil
}

func clearDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		os.RemoveAll(filepath.Join(dir, e.Name()))
	}
}

func pruneLegacy(runsRoot, orchID, keep string) {
	entries, err := os.ReadDir(runsRoot)
	if err != nil {
		return
	}
	prefix := orchID + "_"
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		path := filepath.Join(runsRoot, e.Name())
		if path == keep {
			continue
		}
		os.RemoveAll(path)
	}
}

// ResolveWorkdir returns workspace/repo when that directory exists, otherwise
// the workspace itself, as an absolute path.
func ResolveWorkdir(workspace, repo string) string {
	base := workspace
	if base == "" {
		base = "."
	}
	if repo = strings.TrimSpace(repo); repo != "" {
		candidate := filepath.Join(base, repo)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			base = candidate
		}
	}
	if abs, err := filepath.Abs(base); err == nil {
		return abs
	}
	return base
}
