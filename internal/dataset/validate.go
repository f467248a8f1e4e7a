package dataset

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"agenix/internal/jsonl"
)

// Issue is one problem found in a chat file. Message is -1 for problems
// with the line as a whole.
type Issue struct {
	Line    int    `json:"line"`
	Message int    `json:"message"`
	Problem string `json:"problem"`
}

func (i Issue) String() string {
	if i.Message < 0 {
		return fmt.Sprintf("Line %d: %s", i.Line, i.Problem)
	}
	return fmt.Sprintf("Line %d, msg %d: %s", i.Line, i.Message, i.Problem)
}

// ValidationReport lists every issue found.
type ValidationReport struct {
	Lines  int     `json:"lines"`
	Issues []Issue `json:"issues"`
}

// Valid reports whether the file had no issues.
func (r *ValidationReport) Valid() bool { return len(r.Issues) == 0 }

// Validate checks a chat file without modifying it.
func Validate(ctx context.Context, path string) (*ValidationReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return ValidateReader(ctx, f)
}

// ValidateReader checks chat records read from r.
func ValidateReader(ctx context.Context, r io.Reader) (*ValidationReport, error) {
	report := &ValidationReport{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), jsonl.MaxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return report, err
		}
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		report.Lines++
		report.Issues = append(report.Issues, validateLine(lineNo, raw)...)
	}
	if err := scanner.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func validateLine(line int, raw []byte) []Issue {
	lineIssue := func(problem string) []Issue {
		return []Issue{{Line: line, Message: -1, Problem: problem}}
	}

	var item map[string]json.RawMessage
	if err := json.Unmarshal(raw, &item); err != nil || item == nil {
		return lineIssue("invalid JSON")
	}

	rawMessages, ok := item["messages"]
	if !ok {
		return lineIssue("messages missing")
	}
	var messages []json.RawMessage
	if err := json.Unmarshal(rawMessages, &messages); err != nil {
		return lineIssue("messages is not a list")
	}
	if len(messages) == 0 {
		return lineIssue("messages is empty")
	}

	var issues []Issue
	add := func(i int, format string, args ...any) {
		issues = append(issues, Issue{Line: line, Message: i, Problem: fmt.Sprintf(format, args...)})
	}

	for i, m := range messages {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(m, &fields); err != nil || fields == nil {
			add(i, "not an object")
			continue
		}

		if role, ok := decodeString(fields["role"]); !ok {
			add(i, "role missing or not a string: %s", rawOrMissing(fields["role"]))
		} else if !validRole(role) {
			add(i, "unknown role %q", role)
		}

		content, ok := fields["content"]
		if !ok {
			add(i, "content missing")
			continue
		}
		if _, ok := decodeString(content); !ok {
			add(i, "content is not a string: %s", rawOrMissing(content))
		}
	}
	return issues
}

// decodeString accepts only a JSON string; null and other types fail.
func decodeString(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return "", false
	}
	return s, true
}

func rawOrMissing(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "missing"
	}
	return string(raw)
}
