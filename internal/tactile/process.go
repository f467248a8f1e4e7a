package tactile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"agenix/internal/logging"
)

// killGrace is how long Wait may block on inherited pipes after the process
// has been killed.
const killGrace = 2 * time.Second

// scrubbedEnv is the whole environment handed to host-side backends.
var scrubbedEnv = []string{
	"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
	"LANG=C.UTF-8",
}

// process describes one subprocess invocation.
type process struct {
	name      string
	args      []string
	dir       string
	env       []string
	timeout   time.Duration
	maxOutput int64
	groupKill bool
}

// run executes p under its timeout. It returns an error only when the
// process could not be started or the parent context ended.
func (p process) run(ctx context.Context) (*Outcome, error) {
	execCtx := ctx
	cancel := func() {}
	if p.timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, p.timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(execCtx, p.name, p.args...)
	cmd.Dir = p.dir
	if p.env != nil {
		cmd.Env = p.env
	}
	cmd.WaitDelay = killGrace
	if p.groupKill {
		setProcessGroup(cmd)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	stdout := &limitedWriter{w: &stdoutBuf, max: p.maxOutput}
	stderr := &limitedWriter{w: &stderrBuf, max: p.maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", p.name, err)
	}
	err := cmd.Wait()

	outcome := &Outcome{
		ExitCode:  -1,
		Stdout:    stdoutBuf.String(),
		Stderr:    stderrBuf.String(),
		Truncated: stdout.truncated || stderr.truncated,
		Duration:  time.Since(start),
	}

	if ctx.Err() != nil {
		return outcome, ctx.Err()
	}
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		outcome.TimedOut = true
		logging.SandboxDebug("%s killed after %v", p.name, p.timeout)
		return outcome, nil
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		outcome.ExitCode = 0
	case errors.As(err, &exitErr):
		outcome.ExitCode = exitErr.ExitCode()
	case errors.Is(err, exec.ErrWaitDelay):
		// Exited, but a grandchild kept the output pipes open.
		outcome.ExitCode = cmd.ProcessState.ExitCode()
	default:
		return outcome, fmt.Errorf("failed waiting for %s: %w", p.name, err)
	}
	return outcome, nil
}

// limitedWriter is an io.Writer that limits total bytes written.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil // Pretend we wrote it
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err // Return original length to avoid "short write" errors
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
