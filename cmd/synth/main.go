package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"agenix/internal/config"
	"agenix/internal/logging"
	"agenix/internal/metrics"
)

var (
	// Global flags
	cfgFile     string
	verbose     bool
	metricsAddr string

	// Set up in PersistentPreRunE
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	pm       *metrics.Metrics
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "synth",
	Short: "Synthetic intent-to-shell-plan training data pipeline",
	Long: `synth builds supervised fine-tuning data for a command-planning model.

Stages communicate only through line-delimited JSON files:
  generate  domains -> raw candidates (LLM)
  verify    raw candidates -> verified + failures (sandboxed bash)
  format    verified -> chat and instruction training files
  submit    enqueue a training job for a config file

Run "synth pipeline" to chain generate, verify and format.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if metricsAddr != "" {
			cfg.Metrics.Addr = metricsAddr
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}

		logger, err = buildLogger(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if err := logging.Initialize(logger, cfg.Logging); err != nil {
			return err
		}

		registry = prometheus.NewRegistry()
		pm, err = metrics.New(registry)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}

		logging.BootDebug("Loaded config %s (sandbox=%s, llm=%s/%s)", cfgFile, cfg.Sandbox.Mode, cfg.LLM.Provider, cfg.LLM.Model)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func buildLogger(lc logging.Config) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	if lc.Format == "json" {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if lc.Level != "" {
		lvl, err := zap.ParseAtomicLevel(lc.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = lvl
	}
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "synth.yaml", "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while a stage runs")

	generateCmd.Flags().BoolVar(&resume, "resume", false, "Append to existing candidates and only generate the shortfall")
	pipelineCmd.Flags().BoolVar(&resume, "resume", false, "Resume generation instead of starting over")
	submitCmd.Flags().StringVar(&jobID, "job-id", "", "Job id (default: generated)")
	experimentsCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Write configs without submitting jobs")
	historyCmd.Flags().StringVar(&historyStage, "stage", "", "Only show runs of this stage")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show")

	datasetCmd.AddCommand(datasetRepairCmd)
	datasetCmd.AddCommand(datasetValidateCmd)

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(formatCmd)
	rootCmd.AddCommand(pipelineCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(experimentsCmd)
	rootCmd.AddCommand(datasetCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
