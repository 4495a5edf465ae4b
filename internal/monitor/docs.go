package monitor

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aristath/fleet/internal/manifest"
)

// Document kinds.
const (
	KindLog      = "log"
	KindPrompt   = "prompt"
	KindManifest = "manifest"
	KindReport   = "report"
)

// Document is one artifact related to a worker.
type Document struct {
	Kind    string    `json:"kind"`
	Label   string    `json:"label"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mtime"`
}

// collectDocs gathers the worker's log, prompt, the run manifest and every
// report document that mentions the task id. Sorted by kind, then label.
func (m *Monitor) collectDocs(runName string, e manifest.Entry) []Document {
	seen := make(map[string]bool)
	var docs []Document

	add := func(path, kind string, info os.FileInfo) {
		key := path
		if abs, err := filepath.Abs(path); err == nil {
			key = abs
		}
		key = strings.ToLower(key)
		if seen[key] {
			return
		}
		seen[key] = true
		docs = append(docs, Document{
			Kind:    kind,
			Label:   filepath.Base(path),
			Path:    filepath.ToSlash(path),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	addFile := func(path, kind string) {
		if path == "" {
			return
		}
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			return
		}
		add(path, kind, info)
	}

	addFile(m.logPath(runName, e), KindLog)
	addFile(e.PromptFile, KindPrompt)
	addFile(manifest.Path(m.runDir(runName)), KindManifest)

	if e.TaskID != "" {
		for _, path := range m.ReportDocPaths() {
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			text, err := m.docs.text(path, info.ModTime())
			if err != nil {
				continue
			}
			if strings.Contains(text, e.TaskID) {
				add(path, KindReport, info)
			}
		}
	}

	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Kind != docs[j].Kind {
			return docs[i].Kind < docs[j].Kind
		}
		return docs[i].Label < docs[j].Label
	})
	return docs
}
