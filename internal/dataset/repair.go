package dataset

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"agenix/internal/jsonl"
	"agenix/internal/logging"
	"agenix/internal/types"
)

// RepairReport counts what Repair did to a chat file.
type RepairReport struct {
	Kept            int `json:"kept"`
	Skipped         int `json:"skipped"`
	DroppedMessages int `json:"dropped_messages"`
	CoercedContent  int `json:"coerced_content"`
}

// Counts flattens the report for the run ledger.
func (r *RepairReport) Counts() map[string]int {
	return map[string]int{
		"kept":             r.Kept,
		"skipped":          r.Skipped,
		"dropped_messages": r.DroppedMessages,
		"coerced_content":  r.CoercedContent,
	}
}

func validRole(role string) bool {
	switch role {
	case types.RoleSystem, types.RoleUser, types.RoleAssistant:
		return true
	}
	return false
}

// Repair rewrites a chat file in place so every message has a known string
// role and string content. Messages without a usable role are dropped; null
// content becomes ""; any other non-string content becomes its JSON text.
// Lines that are not JSON or end up with no messages are dropped. The file
// is replaced atomically.
func Repair(ctx context.Context, path string) (*RepairReport, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer in.Close()

	tmp := path + ".tmp"
	out, err := jsonl.Open(tmp, jsonl.Truncate, false)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		out.Close()
		if !committed {
			os.Remove(tmp)
		}
	}()

	report := &RepairReport{}
	scanner := bufio.NewScanner(in)
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

		item, ok := repairLine(raw, report)
		if !ok {
			report.Skipped++
			logging.DatasetDebug("repair %s: dropping line %d", path, lineNo)
			continue
		}
		if err := out.Write(item); err != nil {
			return report, err
		}
		report.Kept++
	}
	if err := scanner.Err(); err != nil {
		return report, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := out.Close(); err != nil {
		return report, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return report, fmt.Errorf("failed to replace %s: %w", path, err)
	}
	committed = true

	logging.Dataset("Repaired %s: kept %d, skipped %d, dropped %d messages, coerced %d contents",
		path, report.Kept, report.Skipped, report.DroppedMessages, report.CoercedContent)
	return report, nil
}

// repairLine fixes one record. Fields other than messages are preserved.
func repairLine(raw []byte, report *RepairReport) (map[string]json.RawMessage, bool) {
	var item map[string]json.RawMessage
	if err := json.Unmarshal(raw, &item); err != nil || item == nil {
		return nil, false
	}

	var messages []json.RawMessage
	if err := json.Unmarshal(item["messages"], &messages); err != nil || len(messages) == 0 {
		return nil, false
	}

	fixed := make([]types.ChatMessage, 0, len(messages))
	for _, m := range messages {
		msg, ok := repairMessage(m, report)
		if !ok {
			report.DroppedMessages++
			continue
		}
		fixed = append(fixed, msg)
	}
	if len(fixed) == 0 {
		return nil, false
	}

	encoded, err := marshalNoEscape(fixed)
	if err != nil {
		return nil, false
	}
	item["messages"] = encoded
	return item, true
}

func repairMessage(raw json.RawMessage, report *RepairReport) (types.ChatMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return types.ChatMessage{}, false
	}

	role, ok := decodeString(fields["role"])
	if !ok || !validRole(role) {
		return types.ChatMessage{}, false
	}

	content, coerced := coerceContent(fields["content"])
	if coerced {
		report.CoercedContent++
	}
	return types.ChatMessage{Role: role, Content: content}, true
}

// coerceContent returns content as a string and whether it had to change.
func coerceContent(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", true
	}
	if s, ok := decodeString(trimmed); ok {
		return s, false
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return string(trimmed), true
	}
	return string(spaceSeparators(compact.Bytes())), true
}
