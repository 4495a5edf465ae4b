package status

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	tailChunk    = 16 * 1024
	tailMaxBytes = 2_000_000
)

// ErrNoLog is returned by ReadTail when the log file does not exist.
var ErrNoLog = errors.New("no log")

// ReadTail returns the last n lines of the file at path. It reads backwards
// in fixed chunks and stops after enough newlines or about 2 MB, so large
// logs cost a bounded read.
func ReadTail(path string, n int) (string, error) {
	if n < 1 {
		n = 1
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoLog
		}
		return "", fmt.Errorf("opening log: %w", err)
	}
	defer f.Close()

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return "", fmt.Errorf("seeking log: %w", err)
	}
	if size <= 0 {
		return "", nil
	}

	pos := size
	var data []byte
	for pos > 0 && bytes.Count(data, []byte{'\n'}) <= n {
		take := min(int64(tailChunk), pos)
		pos -= take
		buf := make([]byte, take)
		if _, err := f.ReadAt(buf, pos); err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading log: %w", err)
		}
		data = append(buf, data...)
		if len(data) > tailMaxBytes {
			break
		}
	}

	text := strings.ToValidUTF8(string(data), "�")
	lines := splitLines(text)
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n"), nil
}

// splitLines splits on \n, \r\n and \r without a trailing empty element.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
