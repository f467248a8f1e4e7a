// Package tactile runs shell scripts in disposable sandboxes.
//
// A Sandbox takes a script path and a wall-clock limit and reports exit code,
// captured output and whether the limit fired. The limit is enforced here, by
// the calling process; nothing inside the sandbox is trusted to stop itself.
package tactile

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Mode selects a sandbox backend.
type Mode string

const (
	ModeDocker    Mode = "docker"    // ephemeral container per script
	ModeNamespace Mode = "namespace" // unshare(1) mount+pid namespaces, Linux only
	ModeLocal     Mode = "local"     // plain bash with a scrubbed environment; development only
)

// DefaultMaxOutputBytes bounds each captured stream.
const DefaultMaxOutputBytes int64 = 1024 * 1024

// ErrUnavailable means the selected backend cannot run on this host.
var ErrUnavailable = errors.New("sandbox backend unavailable")

// Outcome is what a sandbox reports for one script.
type Outcome struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	TimedOut  bool
	Truncated bool
	Duration  time.Duration
}

// Success reports whether the script exited 0 within the limit.
func (o *Outcome) Success() bool {
	return o != nil && !o.TimedOut && o.ExitCode == 0
}

// Sandbox runs one script per call in a fresh environment. A non-nil error
// means the sandbox itself could not be launched.
type Sandbox interface {
	Name() string
	Run(ctx context.Context, scriptPath string, timeout time.Duration) (*Outcome, error)
}

// Config selects and tunes a backend.
type Config struct {
	Mode           Mode
	Image          string // docker only
	Network        string // docker only
	Memory         string // docker --memory, e.g. "512m"
	PidsLimit      int    // docker --pids-limit
	MaxOutputBytes int64
}

// New builds the configured backend and checks it can run on this host.
func New(ctx context.Context, cfg Config) (Sandbox, error) {
	var (
		sb  Sandbox
		err error
	)
	switch cfg.Mode {
	case ModeDocker, "":
		var d *DockerSandbox
		d, err = NewDockerSandbox(cfg)
		if err == nil {
			err = d.Check(ctx)
		}
		sb = d
	case ModeNamespace:
		sb, err = NewNamespaceSandbox(cfg)
	case ModeLocal:
		sb, err = NewLocalSandbox(cfg)
	default:
		return nil, fmt.Errorf("unknown sandbox mode: %s", cfg.Mode)
	}
	if err != nil {
		return nil, err
	}
	return sb, nil
}

func maxOutput(cfg Config) int64 {
	if cfg.MaxOutputBytes > 0 {
		return cfg.MaxOutputBytes
	}
	return DefaultMaxOutputBytes
}
