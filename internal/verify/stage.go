package verify

import (
	"context"
	"io"
	"time"

	"agenix/internal/jsonl"
	"agenix/internal/logging"
	"agenix/internal/metrics"
	"agenix/internal/types"
)

// Report summarizes a verification pass.
type Report struct {
	Total            int `json:"total"`
	Verified         int `json:"verified"`
	Failed           int `json:"failed"`
	TimedOut         int `json:"timed_out"`
	LaunchErrors     int `json:"launch_errors"`
	SkippedMalformed int `json:"skipped_malformed"`
	SkippedEmptyPlan int `json:"skipped_empty_plan"`
}

// Counts flattens the report for the run ledger.
func (r *Report) Counts() map[string]int {
	return map[string]int{
		"total":              r.Total,
		"verified":           r.Verified,
		"failed":             r.Failed,
		"timed_out":          r.TimedOut,
		"launch_errors":      r.LaunchErrors,
		"skipped_malformed":  r.SkippedMalformed,
		"skipped_empty_plan": r.SkippedEmptyPlan,
	}
}

// Stage reads raw candidates and writes the verified and failures streams.
type Stage struct {
	verifier *Verifier
	metrics  *metrics.Metrics
	durable  bool
}

// NewStage creates the verification stage. m may be nil.
func NewStage(v *Verifier, m *metrics.Metrics, durable bool) *Stage {
	return &Stage{verifier: v, metrics: m, durable: durable}
}

// Run verifies every candidate in input, one at a time, in file order. Both
// outputs are truncated once input has been opened; a missing input leaves
// them untouched. On cancellation the in-flight result is
// dropped and the context error returned; every line already written is
// complete.
func (s *Stage) Run(ctx context.Context, input, verifiedPath, failuresPath string) (*Report, error) {
	in, err := jsonl.OpenInput(input)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	verified, err := jsonl.Open(verifiedPath, jsonl.Truncate, s.durable)
	if err != nil {
		return nil, err
	}
	defer verified.Close()

	failures, err := jsonl.Open(failuresPath, jsonl.Truncate, s.durable)
	if err != nil {
		return nil, err
	}
	defer failures.Close()

	return s.run(ctx, in, input, verified, failures)
}

func (s *Stage) run(ctx context.Context, in io.Reader, input string, verified, failures *jsonl.Writer) (*Report, error) {
	report := &Report{}
	timer := logging.StartTimer(logging.CategoryVerify, "verification")
	defer timer.StopWithInfo()

	onSkip := func(e *jsonl.MalformedRecordError) {
		report.SkippedMalformed++
		s.metrics.RecordSkipped("verify", "malformed")
		logging.VerifyWarn("skipping %s: %v", input, e)
	}

	_, err := jsonl.Each(ctx, in, onSkip, func(line int, c types.Candidate) error {
		if !c.HasPlan() {
			report.SkippedEmptyPlan++
			s.metrics.RecordSkipped("verify", "empty_plan")
			logging.VerifyDebug("line %d: %q has no plan, skipping", line, c.Intent)
			return nil
		}

		report.Total++
		logging.Verify("Verifying: %s", c.Intent)

		start := time.Now()
		result, err := s.verifier.Verify(ctx, c)
		if err != nil {
			report.Total--
			return err
		}

		ok, failed := result.Record()
		switch {
		case ok != nil:
			if err := verified.Write(ok); err != nil {
				return err
			}
			report.Verified++
			s.metrics.Verification("verified", time.Since(start))
			logging.Verify("  Success")
		default:
			if err := failures.Write(failed); err != nil {
				return err
			}
			report.Failed++
			label := "failed"
			if result.TimedOut {
				report.TimedOut++
				label = "timeout"
			}
			if result.LaunchError {
				report.LaunchErrors++
				label = "launch_error"
			}
			s.metrics.Verification(label, time.Since(start))
			logging.Verify("  Failed: %s", truncate(result.Diagnostic, 200))
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	logging.Verify("Verification complete. %d/%d verified, %d failed, %d skipped",
		report.Verified, report.Total, report.Failed, report.SkippedMalformed+report.SkippedEmptyPlan)
	return report, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
