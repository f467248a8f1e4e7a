package llm

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

const fence = "```"

// StripFences removes a surrounding markdown code fence (```json ... ``` or
// ``` ... ```). When the fence follows leading prose, the fenced block is
// extracted. Text without fences is returned trimmed.
func StripFences(content string) string {
	s := strings.TrimSpace(content)

	if !strings.HasPrefix(s, fence) {
		idx := strings.Index(s, fence)
		if idx < 0 {
			return s
		}
		s = s[idx:]
	}

	// Drop the opening fence line, including any language tag.
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, fence)
		s = strings.TrimPrefix(s, "json")
	}

	if end := strings.Index(s, fence); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// DecodeJSON strips fences from content and unmarshals it into v. Invalid JSON
// gets one repair pass before a *ParseError is returned.
func DecodeJSON(content string, v any) error {
	body := StripFences(content)

	err := json.Unmarshal([]byte(body), v)
	if err == nil {
		return nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(body)
	if repairErr != nil {
		return &ParseError{Content: content, Err: err}
	}
	if err2 := json.Unmarshal([]byte(repaired), v); err2 != nil {
		return &ParseError{Content: content, Err: err2}
	}
	return nil
}
