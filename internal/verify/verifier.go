// Package verify executes candidate plans in a sandbox and sorts them into
// verified and failed streams.
package verify

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"agenix/internal/logging"
	"agenix/internal/tactile"
	"agenix/internal/types"
)

// DefaultTimeout is the per-plan wall-clock limit.
const DefaultTimeout = 10 * time.Second

// TimeoutDiagnostic is recorded for plans that exceed the limit.
const TimeoutDiagnostic = "Timeout"

// scriptHeader makes the script stop at the first failing step.
const scriptHeader = "#!/bin/bash\nset -e\n"

// RenderScript turns a plan into a bash script. Commands are copied verbatim,
// one per line, in plan order.
func RenderScript(plan []types.Step) string {
	var b strings.Builder
	b.WriteString(scriptHeader)
	for _, step := range plan {
		b.WriteString(step.Command)
		b.WriteByte('\n')
	}
	return b.String()
}

// Verifier runs plans through a Sandbox.
type Verifier struct {
	sandbox    tactile.Sandbox
	timeout    time.Duration
	scratchDir string
}

// NewVerifier creates a Verifier. scratchDir may be empty to use the system
// temp directory; timeout <= 0 uses DefaultTimeout.
func NewVerifier(sb tactile.Sandbox, timeout time.Duration, scratchDir string) *Verifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Verifier{sandbox: sb, timeout: timeout, scratchDir: scratchDir}
}

// Verify runs one candidate's plan. The scratch script exists only for the
// duration of the sandbox call. If ctx ends mid-run the returned error is the
// context error and the result must be discarded.
func (v *Verifier) Verify(ctx context.Context, c types.Candidate) (types.VerificationResult, error) {
	result := types.VerificationResult{Candidate: c}

	outcome, err := v.runScript(ctx, RenderScript(c.Plan))
	if cerr := ctx.Err(); cerr != nil {
		return result, cerr
	}

	switch {
	case err != nil:
		result.LaunchError = true
		result.Diagnostic = err.Error()
	case outcome.TimedOut:
		result.TimedOut = true
		result.Diagnostic = TimeoutDiagnostic
	case outcome.ExitCode == 0:
		result.Verified = true
		result.Diagnostic = outcome.Stdout
	default:
		result.Diagnostic = outcome.Stderr
	}
	return result, nil
}

func (v *Verifier) runScript(ctx context.Context, script string) (*tactile.Outcome, error) {
	if v.scratchDir != "" {
		if err := os.MkdirAll(v.scratchDir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create scratch directory: %w", err)
		}
	}

	f, err := os.CreateTemp(v.scratchDir, "run_plan_*.sh")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch script: %w", err)
	}
	path := f.Name()
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			logging.VerifyWarn("failed to remove scratch script %s: %v", path, rmErr)
		}
	}()

	if _, err := f.WriteString(script); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write scratch script: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close scratch script: %w", err)
	}
	// Containers may run as a different uid; the script only needs to be readable.
	if err := os.Chmod(path, 0644); err != nil {
		return nil, fmt.Errorf("failed to chmod scratch script: %w", err)
	}

	return v.sandbox.Run(ctx, path, v.timeout)
}
