// Package jsonl reads and writes line-delimited JSON files.
//
// Writers hand each record to the OS in a single write call, so a crash or an
// interrupt never leaves a partial line behind; readers skip and count lines
// that do not decode instead of aborting.
package jsonl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Writer is an append handle over one output stream. It is owned by exactly
// one stage for the duration of that stage.
type Writer struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	durable bool
	count   int
}

// Mode selects how Open treats an existing file.
type Mode int

const (
	// Truncate starts the stream empty.
	Truncate Mode = iota
	// Append keeps existing records and adds after them.
	Append
)

// Open acquires an append handle. With durable set every record is fsynced
// before Write returns.
func Open(path string, mode Mode, durable bool) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if mode == Truncate {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &Writer{file: file, path: path, durable: durable}, nil
}

// Marshal encodes v as one compact JSON line without HTML escaping, so shell
// operators such as && and > survive verbatim.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write appends one record.
func (w *Writer) Write(v any) error {
	line, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode record for %s: %w", w.path, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return fmt.Errorf("write to closed stream %s", w.path)
	}
	if _, err := w.file.Write(line); err != nil {
		return fmt.Errorf("failed to append to %s: %w", w.path, err)
	}
	if w.durable {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("failed to sync %s: %w", w.path, err)
		}
	}
	w.count++
	return nil
}

// Count returns the number of records written through this handle.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Path returns the file path backing the stream.
func (w *Writer) Path() string {
	return w.path
}

// Close releases the handle. Closing twice is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
