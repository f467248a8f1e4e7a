package tactile

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// LocalSandbox runs scripts with host bash, a scrubbed environment and a
// throwaway working directory. It offers no isolation and exists for tests
// and development on machines without docker.
type LocalSandbox struct {
	bashPath  string
	maxOutput int64
}

// NewLocalSandbox locates bash.
func NewLocalSandbox(cfg Config) (*LocalSandbox, error) {
	bashPath, err := exec.LookPath("bash")
	if err != nil {
		return nil, fmt.Errorf("%w: bash not found: %v", ErrUnavailable, err)
	}
	return &LocalSandbox{bashPath: bashPath, maxOutput: maxOutput(cfg)}, nil
}

// Name identifies the backend in logs.
func (l *LocalSandbox) Name() string { return "local" }

// Run executes the script with host bash.
func (l *LocalSandbox) Run(ctx context.Context, scriptPath string, timeout time.Duration) (*Outcome, error) {
	return runInScratchDir(ctx, func(dir string) process {
		return process{
			name:      l.bashPath,
			args:      []string{scriptPath},
			dir:       dir,
			env:       append(append([]string{}, scrubbedEnv...), "HOME="+dir),
			timeout:   timeout,
			maxOutput: l.maxOutput,
			groupKill: true,
		}
	})
}
