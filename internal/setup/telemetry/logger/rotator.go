package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Rotator writes log lines to a file and keeps it bounded. Once twice the
// line limit has been written the file is rewritten with only the newest
// maxLines lines.
type Rotator struct {
	mu       sync.Mutex
	file     io.WriteCloser
	path     string
	lines    [][]byte
	next     int
	full     bool
	written  int
	maxLines int
}

// Open opens path for appending and wraps it in a rotator. A maxLines of zero
// or less disables rotation.
func Open(path string, maxLines int) (*Rotator, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open log file %s: %w", path, err)
	}

	r := &Rotator{file: file, path: path, maxLines: maxLines}
	if maxLines > 0 {
		r.lines = make([][]byte, maxLines)
	}
	return r, nil
}

// Write implements io.Writer.
func (r *Rotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.file.Write(p)
	if err != nil || r.maxLines <= 0 {
		return n, err
	}

	for line := range bytes.SplitSeq(bytes.TrimRight(p, "\n"), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		r.remember(line)

		if r.written >= r.maxLines*2 {
			if err := r.rotate(); err != nil {
				return n, fmt.Errorf("failed to rotate log file: %w", err)
			}
			r.written = r.maxLines
		}
	}

	return n, nil
}

// Sync is a no-op so the rotator can be used as a zapcore.WriteSyncer.
func (r *Rotator) Sync() error {
	return nil
}

// Close closes the underlying file.
func (r *Rotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}

func (r *Rotator) remember(line []byte) {
	r.lines[r.next] = bytes.Clone(line)
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
	r.written++
}

// tail returns the remembered lines, oldest first.
func (r *Rotator) tail() [][]byte {
	if !r.full {
		return r.lines[:r.next]
	}
	out := make([][]byte, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)
	return append(out, r.lines[:r.next]...)
}

// rotate replaces the file with the remembered lines and reopens it.
func (r *Rotator) rotate() error {
	lines := r.tail()
	if len(lines) == 0 {
		return nil
	}

	temp, err := os.CreateTemp(filepath.Dir(r.path), "rotate-*.log")
	if err != nil {
		return err
	}

	content := append(bytes.Join(lines, []byte("\n")), '\n')
	if _, err := temp.Write(content); err != nil {
		temp.Close()
		os.Remove(temp.Name())
		return err
	}
	if err := temp.Close(); err != nil {
		os.Remove(temp.Name())
		return err
	}

	r.file.Close()
	if err := os.Rename(temp.Name(), r.path); err != nil {
		return err
	}

	file, err := os.OpenFile(r.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	r.file = file

	return nil
}
