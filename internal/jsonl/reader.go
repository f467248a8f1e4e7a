package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// MaxLineBytes bounds a single record.
const MaxLineBytes = 16 * 1024 * 1024

// MalformedRecordError describes a line that could not be used.
type MalformedRecordError struct {
	Line   int
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// Malformed builds a MalformedRecordError; visitors return it to have a
// decodable but unusable record counted as skipped.
func Malformed(line int, format string, args ...any) error {
	return &MalformedRecordError{Line: line, Reason: fmt.Sprintf(format, args...)}
}

// Stats summarizes a read pass.
type Stats struct {
	Lines   int // non-blank lines seen
	Skipped int // lines that failed to decode or were rejected by the visitor
}

// SkipFunc observes every skipped line.
type SkipFunc func(err *MalformedRecordError)

// Each decodes every non-blank line of r into a fresh T and calls fn. Lines
// that are not valid JSON for T are skipped and counted; so are lines for which
// fn returns a *MalformedRecordError. Any other error from fn stops the pass.
// The context is checked between lines.
func Each[T any](ctx context.Context, r io.Reader, onSkip SkipFunc, fn func(line int, rec T) error) (Stats, error) {
	var stats Stats

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		stats.Lines++

		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			stats.Skipped++
			if onSkip != nil {
				onSkip(&MalformedRecordError{Line: lineNo, Reason: err.Error()})
			}
			continue
		}

		if err := fn(lineNo, rec); err != nil {
			var mre *MalformedRecordError
			if errors.As(err, &mre) {
				stats.Skipped++
				if onSkip != nil {
					onSkip(mre)
				}
				continue
			}
			return stats, err
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read line %d: %w", lineNo+1, err)
	}
	return stats, nil
}

// EachFile opens path and runs Each over it. A missing file is reported as an
// error so callers can abort before doing any work.
func EachFile[T any](ctx context.Context, path string, onSkip SkipFunc, fn func(line int, rec T) error) (Stats, error) {
	f, err := OpenInput(path)
	if err != nil {
		return Stats{}, err
	}
	defer f.Close()
	return Each(ctx, f, onSkip, fn)
}

// OpenInput opens an input stream for reading. Stages call it before
// truncating their outputs so a bad input path leaves previous results intact.
func OpenInput(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}
