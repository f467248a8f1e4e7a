package dataset

import (
	"context"
	"strings"

	"agenix/internal/jsonl"
	"agenix/internal/logging"
	"agenix/internal/metrics"
	"agenix/internal/types"
)

// Report counts what a formatter run wrote and skipped. The two stream
// counters are kept independently.
type Report struct {
	Chat              int `json:"chat"`
	Instruction       int `json:"instruction"`
	SkippedUnverified int `json:"skipped_unverified"`
	SkippedMalformed  int `json:"skipped_malformed"`
}

// Counts flattens the report for the run ledger.
func (r *Report) Counts() map[string]int {
	return map[string]int{
		"chat":               r.Chat,
		"instruction":        r.Instruction,
		"skipped_unverified": r.SkippedUnverified,
		"skipped_malformed":  r.SkippedMalformed,
	}
}

// Formatter writes the chat and instruction training files.
type Formatter struct {
	metrics *metrics.Metrics
}

// NewFormatter creates a Formatter. m may be nil.
func NewFormatter(m *metrics.Metrics) *Formatter {
	return &Formatter{metrics: m}
}

// Run formats every verified record in input. Outputs are rewritten from
// scratch, so running twice over the same input yields identical files. A
// missing input is reported before either output is touched.
func (f *Formatter) Run(ctx context.Context, input, chatPath, instructionPath string) (*Report, error) {
	in, err := jsonl.OpenInput(input)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	chat, err := jsonl.Open(chatPath, jsonl.Truncate, false)
	if err != nil {
		return nil, err
	}
	defer chat.Close()

	instruction, err := jsonl.Open(instructionPath, jsonl.Truncate, false)
	if err != nil {
		return nil, err
	}
	defer instruction.Close()

	report := &Report{}
	onSkip := func(e *jsonl.MalformedRecordError) {
		report.SkippedMalformed++
		f.metrics.RecordSkipped("format", "malformed")
		logging.DatasetWarn("skipping %s: %v", input, e)
	}

	_, err = jsonl.Each(ctx, in, onSkip, func(line int, rec types.VerifiedRecord) error {
		if strings.TrimSpace(rec.Intent) == "" {
			return jsonl.Malformed(line, "missing intent")
		}
		if !rec.HasPlan() {
			return jsonl.Malformed(line, "missing plan")
		}
		if !rec.Verified {
			report.SkippedUnverified++
			f.metrics.RecordSkipped("format", "unverified")
			return nil
		}

		if ex, err := ToChatExample(rec); err != nil {
			logging.DatasetWarn("line %d: chat example: %v", line, err)
		} else if err := chat.Write(ex); err != nil {
			return err
		} else {
			report.Chat++
			f.metrics.ExampleFormatted("chat")
		}

		if ex, err := ToInstructionExample(rec); err != nil {
			logging.DatasetWarn("line %d: instruction example: %v", line, err)
		} else if err := instruction.Write(ex); err != nil {
			return err
		} else {
			report.Instruction++
			f.metrics.ExampleFormatted("instruction")
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	logging.Dataset("Formatted %d chat examples -> %s", report.Chat, chatPath)
	logging.Dataset("Formatted %d instruction examples -> %s", report.Instruction, instructionPath)
	return report, nil
}
