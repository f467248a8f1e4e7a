package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"agenix/internal/config"
	"agenix/internal/experiments"
	"agenix/internal/queue"
)

var (
	jobID  string
	dryRun bool
)

var submitCmd = &cobra.Command{
	Use:   "submit [config_path]",
	Short: "Enqueue a training job for a fine-tuning config",
	Long: `Writes the job record to job:<id> and pushes the id onto the configured
queue. Both writes are always attempted; any failure is reported.

Example:
  synth submit training/axolotl.yaml --job-id job-baseline`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd.Context(), "submit", func(ctx context.Context) (map[string]int, error) {
			return submitStage(ctx, cmd.OutOrStdout(), cfg, args[0], jobID)
		})
	},
}

var experimentsCmd = &cobra.Command{
	Use:   "experiments",
	Short: "Write one training config per grid point and submit each",
	Long: `Expands experiments.learning_rates x experiments.lora_ranks into configs
under experiments.dir, derived from experiments.base_config. Unless --dry-run
is set, each config is submitted as a training job.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd.Context(), "experiments", func(ctx context.Context) (map[string]int, error) {
			return experimentsStage(ctx, cmd.OutOrStdout(), cfg, dryRun)
		})
	},
}

func openQueue(ctx context.Context, cfg *config.Config) (*queue.RedisBackend, *queue.Submitter, error) {
	if err := cfg.ValidateQueue(); err != nil {
		return nil, nil, err
	}
	backend, err := queue.NewRedisBackend(ctx, queue.RedisConfig{
		Addr:        cfg.Queue.Addr,
		Password:    cfg.Queue.Password,
		DB:          cfg.Queue.DB,
		DialTimeout: cfg.GetQueueDialTimeout(),
	})
	if err != nil {
		return nil, nil, err
	}
	return backend, queue.NewSubmitter(backend, cfg.Queue.Name, pm), nil
}

func submitStage(ctx context.Context, out io.Writer, cfg *config.Config, configPath, id string) (map[string]int, error) {
	backend, submitter, err := openQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer backend.Close()

	if id == "" {
		id = queue.NewJobID("job")
	}
	job, err := submitter.Submit(ctx, configPath, id)
	if err != nil {
		return map[string]int{"submitted": 0, "failed": 1}, err
	}

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Job %s submitted to %s\n%s\n", job.ID, cfg.Queue.Name, data)
	return map[string]int{"submitted": 1, "failed": 0}, nil
}

func experimentsStage(ctx context.Context, out io.Writer, cfg *config.Config, dryRun bool) (map[string]int, error) {
	if err := cfg.ValidateExperiments(); err != nil {
		return nil, err
	}

	runner := &experiments.Runner{
		BaseConfig: cfg.Experiments.BaseConfig,
		Dir:        cfg.Experiments.Dir,
		Points:     experiments.Grid(cfg.Experiments.LearningRates, cfg.Experiments.LoRARanks, cfg.Experiments.Dropout),
		DryRun:     dryRun,
	}
	if !dryRun {
		backend, submitter, err := openQueue(ctx, cfg)
		if err != nil {
			return nil, err
		}
		defer backend.Close()
		runner.Submitter = submitter
	}

	report, err := runner.Run(ctx)
	for _, e := range report.Experiments {
		switch {
		case e.Err != nil:
			fmt.Fprintf(out, "%s: %v\n", e.ID, e.Err)
		case e.JobID != "":
			fmt.Fprintf(out, "%s: %s -> %s\n", e.ID, e.ConfigPath, e.JobID)
		default:
			fmt.Fprintf(out, "%s: %s\n", e.ID, e.ConfigPath)
		}
	}
	return report.Counts(), err
}
