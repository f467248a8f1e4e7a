package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Step is a single shell instruction. The command is executed verbatim.
//
// Steps may carry keys besides "command" (an LLM adding a description, a
// hand-edited input file). Those steps keep their original object in Raw and
// are written back byte for byte, so a plan passes through every stage
// unchanged.
type Step struct {
	Command string `json:"command"`

	// Raw is the compacted step object as read. It is nil for steps whose
	// only key is "command".
	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes a step, keeping the original bytes when the object
// has keys other than "command".
func (s *Step) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var cmd string
	if v, ok := fields["command"]; ok {
		if err := json.Unmarshal(v, &cmd); err != nil {
			return fmt.Errorf("step command: %w", err)
		}
	}
	s.Command = cmd
	s.Raw = nil

	for k := range fields {
		if k == "command" {
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return err
		}
		s.Raw = buf.Bytes()
		break
	}
	return nil
}

// MarshalJSON writes Raw when present, with the command swapped in only if it
// was changed after decoding.
func (s Step) MarshalJSON() ([]byte, error) {
	if len(s.Raw) == 0 {
		return encodeNoEscape(struct {
			Command string `json:"command"`
		}{s.Command})
	}
	return s.rewriteRaw()
}

// rewriteRaw re-emits Raw in key order. Values other than a changed command
// are copied verbatim.
func (s Step) rewriteRaw() ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(s.Raw))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, fmt.Errorf("step raw value is not an object")
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	sawCommand := false
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("step raw value has a non-string key")
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, err
		}

		if key == "command" {
			sawCommand = true
			var old string
			if err := json.Unmarshal(val, &old); err != nil || old != s.Command {
				if val, err = encodeNoEscape(s.Command); err != nil {
					return nil, err
				}
			}
		}
		if err := writeField(&buf, key, val); err != nil {
			return nil, err
		}
	}
	if !sawCommand && s.Command != "" {
		val, err := encodeNoEscape(s.Command)
		if err != nil {
			return nil, err
		}
		if err := writeField(&buf, "command", val); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, key string, val []byte) error {
	k, err := encodeNoEscape(key)
	if err != nil {
		return err
	}
	if buf.Len() > 1 {
		buf.WriteByte(',')
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(val)
	return nil
}

// encodeNoEscape is json.Marshal without HTML escaping, so shell operators
// such as && and > stay readable.
func encodeNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
