package tui

import (
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher signals when any of a set of files is written, created, renamed
// or removed. Bursts coalesce into a single pending signal.
type Watcher struct {
	w       *fsnotify.Watcher
	files   map[string]bool
	changes chan struct{}
	done    chan struct{}
	logger  *log.Logger
}

// NewWatcher watches files through their parent directories, so atomic
// replace-by-rename writes are seen. Missing directories are skipped.
func NewWatcher(logger *log.Logger, files ...string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		w:       fw,
		files:   make(map[string]bool),
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
		logger:  logger,
	}

	dirs := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			continue
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		if err := fw.Add(dir); err != nil {
			w.logf("[WARN] watch %s: %v", dir, err)
		}
	}

	go w.loop()
	return w, nil
}

// Changes delivers one value per burst of changes. It is closed by Close.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

func (w *Watcher) loop() {
	defer close(w.done)
	defer close(w.changes)
	for {
		select {
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if !w.files[filepath.Clean(ev.Name)] {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			select {
			case w.changes <- struct{}{}:
			default:
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			w.logf("[WARN] watch: %v", err)
		}
	}
}

// Close stops watching and closes the Changes channel.
func (w *Watcher) Close() error {
	err := w.w.Close()
	<-w.done
	return err
}

func (w *Watcher) logf(format string, args ...any) {
	if w.logger != nil {
		w.logger.Printf(format, args...)
	}
}
