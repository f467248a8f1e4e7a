package experiments

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"agenix/internal/logging"
	"agenix/internal/queue"
)

// JobSubmitter enqueues a training job for a config file.
type JobSubmitter interface {
	Submit(ctx context.Context, configPath, jobID string) (queue.Job, error)
}

// Experiment is the outcome of one grid point.
type Experiment struct {
	ID         string
	Point      Point
	ConfigPath string
	OutputDir  string
	JobID      string // empty on dry runs
	Err        error
}

// Report summarizes a Runner pass.
type Report struct {
	Experiments []Experiment
}

// Counts returns totals for the run ledger.
func (r Report) Counts() map[string]int {
	var configs, submitted, failed int
	for _, e := range r.Experiments {
		if e.ConfigPath != "" {
			configs++
		}
		if e.Err != nil {
			failed++
		} else if e.JobID != "" {
			submitted++
		}
	}
	return map[string]int{"configs": configs, "submitted": submitted, "failed": failed}
}

// Runner writes one config per grid point and submits it.
type Runner struct {
	BaseConfig string
	Dir        string
	Points     []Point
	Submitter  JobSubmitter // unused when DryRun
	DryRun     bool
}

// Run processes every point. A failed point does not stop the others; all
// failures are returned joined.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	var report Report

	base, err := os.ReadFile(r.BaseConfig)
	if err != nil {
		return report, fmt.Errorf("failed to read base config: %w", err)
	}
	if err := os.MkdirAll(r.Dir, 0755); err != nil {
		return report, fmt.Errorf("failed to create experiments dir: %w", err)
	}
	if !r.DryRun && r.Submitter == nil {
		return report, errors.New("a job submitter is required unless dry-run is set")
	}

	var errs []error
	for _, p := range r.Points {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		exp := r.runPoint(ctx, base, p)
		if exp.Err != nil {
			logging.ExperimentsWarn("%s: %v", exp.ID, exp.Err)
			errs = append(errs, fmt.Errorf("%s: %w", exp.ID, exp.Err))
		}
		report.Experiments = append(report.Experiments, exp)
	}
	return report, errors.Join(errs...)
}

func (r *Runner) runPoint(ctx context.Context, base []byte, p Point) Experiment {
	id := p.ID()
	exp := Experiment{
		ID:        id,
		Point:     p,
		OutputDir: filepath.Join(r.Dir, "out_"+id),
	}

	rendered, err := RenderConfig(base, p, exp.OutputDir)
	if err != nil {
		exp.Err = err
		return exp
	}
	path := filepath.Join(r.Dir, "axolotl_"+id+".yaml")
	if err := os.WriteFile(path, rendered, 0644); err != nil {
		exp.Err = fmt.Errorf("failed to write config: %w", err)
		return exp
	}
	exp.ConfigPath = path
	logging.Experiments("Generated config: %s", path)

	if r.DryRun {
		return exp
	}
	jobID := queue.NewJobID("job-" + id)
	if _, err := r.Submitter.Submit(ctx, path, jobID); err != nil {
		exp.Err = err
		return exp
	}
	exp.JobID = jobID
	return exp
}
