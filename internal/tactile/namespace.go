package tactile

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"
)

// NamespaceSandbox runs scripts under `unshare -m -p -f --mount-proc` on hosts
// without a container runtime. The script gets private mount and PID
// namespaces and a fresh working directory, but shares the host filesystem.
type NamespaceSandbox struct {
	unsharePath string
	bashPath    string
	maxOutput   int64
}

// NewNamespaceSandbox checks for unshare(1) and bash on a Linux host.
func NewNamespaceSandbox(cfg Config) (*NamespaceSandbox, error) {
	if runtime.GOOS != "linux" {
		return nil, fmt.Errorf("%w: namespace sandbox requires linux, have %s", ErrUnavailable, runtime.GOOS)
	}
	unsharePath, err := exec.LookPath("unshare")
	if err != nil {
		return nil, fmt.Errorf("%w: unshare not found: %v", ErrUnavailable, err)
	}
	bashPath, err := exec.LookPath("bash")
	if err != nil {
		return nil, fmt.Errorf("%w: bash not found: %v", ErrUnavailable, err)
	}
	return &NamespaceSandbox{unsharePath: unsharePath, bashPath: bashPath, maxOutput: maxOutput(cfg)}, nil
}

// Name identifies the backend in logs.
func (n *NamespaceSandbox) Name() string { return "namespace" }

// Run executes the script in new mount and PID namespaces.
func (n *NamespaceSandbox) Run(ctx context.Context, scriptPath string, timeout time.Duration) (*Outcome, error) {
	return runInScratchDir(ctx, func(dir string) process {
		return process{
			name:      n.unsharePath,
			args:      []string{"-m", "-p", "-f", "--mount-proc", n.bashPath, scriptPath},
			dir:       dir,
			env:       append(append([]string{}, scrubbedEnv...), "HOME="+dir),
			timeout:   timeout,
			maxOutput: n.maxOutput,
			groupKill: true,
		}
	})
}

// runInScratchDir gives each run its own empty working directory and removes
// it afterwards.
func runInScratchDir(ctx context.Context, build func(dir string) process) (*Outcome, error) {
	dir, err := os.MkdirTemp("", "agenix-run-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	return build(dir).run(ctx)
}
