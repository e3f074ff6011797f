// Package sink implements the append-only record stream: UTF-8, one JSON
// object per line, no array wrapper. Records are never mutated after being
// appended; duplicate suppression happens before emission, not here.
package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Writer appends newline-delimited JSON records to a file. Writes are
// serialized by a mutex and each record is written as one complete line, so
// concurrent completions never interleave partial lines.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	path string
}

// Open opens (or creates) a sink file for appending, creating parent
// directories as needed.
func Open(path string) (*Writer, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sink dir %q: %w", dir, err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open sink %q: %w", path, err)
	}

	return &Writer{
		file: f,
		buf:  bufio.NewWriter(f),
		path: path,
	}, nil
}

// Append encodes one record and buffers it as a whole line.
func (w *Writer) Append(record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.buf.Write(data); err != nil {
		return fmt.Errorf("append to sink %q: %w", w.path, err)
	}
	return nil
}

// AppendBatch encodes records and buffers them, then flushes so the whole
// batch survives an interruption.
func (w *Writer) AppendBatch(records []any) error {
	for _, r := range records {
		if err := w.Append(r); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Flush forces buffered lines to durable storage.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush sink %q: %w", w.path, err)
	}
	return w.file.Sync()
}

// Path returns the sink's file path.
func (w *Writer) Path() string {
	return w.path
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("flush sink %q: %w", w.path, err)
	}
	return w.file.Close()
}
