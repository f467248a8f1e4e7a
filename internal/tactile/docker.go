package tactile

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"agenix/internal/logging"
)

// ContainerScriptPath is where the plan script is mounted inside the container.
const ContainerScriptPath = "/run_plan.sh"

// DockerSandbox runs each script in a fresh `docker run --rm` container with
// only the script mounted, read-only.
type DockerSandbox struct {
	dockerPath string
	image      string
	network    string
	memory     string
	pidsLimit  int
	maxOutput  int64
}

// NewDockerSandbox locates the docker binary. Use Check to confirm the daemon
// responds.
func NewDockerSandbox(cfg Config) (*DockerSandbox, error) {
	dockerPath, err := exec.LookPath("docker")
	if err != nil {
		return nil, fmt.Errorf("%w: docker binary not found: %v", ErrUnavailable, err)
	}
	image := cfg.Image
	if image == "" {
		image = "ubuntu:latest"
	}
	network := cfg.Network
	if network == "" {
		network = "bridge"
	}
	return &DockerSandbox{
		dockerPath: dockerPath,
		image:      image,
		network:    network,
		memory:     cfg.Memory,
		pidsLimit:  cfg.PidsLimit,
		maxOutput:  maxOutput(cfg),
	}, nil
}

// Name identifies the backend in logs.
func (d *DockerSandbox) Name() string { return "docker:" + d.image }

// Check verifies the docker daemon is responsive.
func (d *DockerSandbox) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.dockerPath, "version", "--format", "{{.Server.Version}}")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: docker daemon not responding: %v: %s", ErrUnavailable, err, out)
	}
	logging.Sandbox("Docker server %s available", string(out))
	return nil
}

// runArgs builds the docker run arguments for one script.
func (d *DockerSandbox) runArgs(containerName, scriptPath string) []string {
	args := []string{"run", "--rm", "--name", containerName, "--network", d.network}
	if d.memory != "" {
		args = append(args, "--memory", d.memory)
	}
	if d.pidsLimit > 0 {
		args = append(args, "--pids-limit", strconv.Itoa(d.pidsLimit))
	}
	args = append(args,
		"-v", fmt.Sprintf("%s:%s:ro", scriptPath, ContainerScriptPath),
		d.image,
		"bash", ContainerScriptPath,
	)
	return args
}

// Run executes the script in a new container. When the limit fires the
// container is force-removed, since killing the docker client alone leaves it
// running.
func (d *DockerSandbox) Run(ctx context.Context, scriptPath string, timeout time.Duration) (*Outcome, error) {
	abs, err := filepath.Abs(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve script path: %w", err)
	}

	name := "agenix-" + uuid.NewString()
	outcome, err := process{
		name:      d.dockerPath,
		args:      d.runArgs(name, abs),
		timeout:   timeout,
		maxOutput: d.maxOutput,
	}.run(ctx)

	if err != nil || (outcome != nil && outcome.TimedOut) {
		d.remove(name)
	}
	return outcome, err
}

// remove force-removes a container using its own short deadline, since the
// run context is usually already done.
func (d *DockerSandbox) remove(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if out, err := exec.CommandContext(ctx, d.dockerPath, "rm", "-f", name).CombinedOutput(); err != nil {
		logging.SandboxWarn("failed to remove container %s: %v: %s", name, err, out)
		return
	}
	logging.SandboxDebug("removed container %s", name)
}
