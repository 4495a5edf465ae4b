// Package fsutil holds the whole-file write helpers shared by the roster and
// manifest writers.
package fsutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig configures how a failed rename is retried.
type RetryConfig struct {
	InitialInterval time.Duration // First retry delay (default 20ms)
	MaxInterval     time.Duration // Maximum retry delay (default 250ms)
	MaxElapsedTime  time.Duration // Give up after this long (default 2s)
}

// DefaultRetryConfig returns the retry policy used by WriteFileAtomic.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     250 * time.Millisecond,
		MaxElapsedTime:  2 * time.Second,
	}
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path, so readers observe either the old or the new document.
// The rename is retried with exponential backoff: on some platforms it fails
// transiently while another process holds the destination open.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return writeFileAtomic(path, data, perm, DefaultRetryConfig())
}

func writeFileAtomic(path string, data []byte, perm os.FileMode, retryCfg RetryConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	// Removing a renamed temp file is a harmless no-op.
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryCfg.InitialInterval
	policy.MaxInterval = retryCfg.MaxInterval
	policy.MaxElapsedTime = retryCfg.MaxElapsedTime

	rename := func() error {
		return os.Rename(tmpPath, path)
	}
	if err := backoff.Retry(rename, policy); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// WriteJSON marshals v with two-space indentation and writes it atomically.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	return WriteFileAtomic(path, append(data, '\n'), 0o644)
}
