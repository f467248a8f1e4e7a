package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"agenix/internal/config"
	"agenix/internal/dataset"
	"agenix/internal/generate"
	"agenix/internal/llm"
	"agenix/internal/prompt"
	"agenix/internal/tactile"
	"agenix/internal/verify"
)

var resume bool

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate raw intent/plan candidates for every domain",
	Long: `Prompts the configured LLM once per batch for every domain in the domains
file until each domain has generation.target_count candidates. Candidates are
appended to generation.output as they arrive.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd.Context(), "generate", func(ctx context.Context) (map[string]int, error) {
			return generateStage(ctx, cmd.OutOrStdout(), cfg, resume)
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Execute every candidate plan in the sandbox",
	Long: `Runs each raw candidate's plan as a bash script (set -e) in the configured
sandbox. Successful plans go to verify.verified_output, everything else to
verify.failures_output with the diagnostic.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd.Context(), "verify", func(ctx context.Context) (map[string]int, error) {
			return verifyStage(ctx, cmd.OutOrStdout(), cfg)
		})
	},
}

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Write the chat and instruction training files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd.Context(), "format", func(ctx context.Context) (map[string]int, error) {
			return formatStage(ctx, cmd.OutOrStdout(), cfg)
		})
	},
}

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run generate, verify and format in sequence",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		stages := []struct {
			name string
			fn   stageFunc
		}{
			{"generate", func(ctx context.Context) (map[string]int, error) { return generateStage(ctx, out, cfg, resume) }},
			{"verify", func(ctx context.Context) (map[string]int, error) { return verifyStage(ctx, out, cfg) }},
			{"format", func(ctx context.Context) (map[string]int, error) { return formatStage(ctx, out, cfg) }},
		}
		for _, s := range stages {
			if err := runStage(ctx, s.name, s.fn); err != nil {
				return fmt.Errorf("%s: %w", s.name, err)
			}
		}
		return nil
	},
}

func generateStage(ctx context.Context, out io.Writer, cfg *config.Config, resume bool) (map[string]int, error) {
	if err := cfg.ValidateGenerate(); err != nil {
		return nil, err
	}
	domains, err := config.LoadDomains(cfg.Generation.DomainsFile)
	if err != nil {
		return nil, err
	}
	client, err := llm.NewClient(ctx, llm.Config{
		Provider: llm.Provider(cfg.LLM.Provider),
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Timeout:  cfg.GetLLMTimeout(),
	})
	if err != nil {
		return nil, err
	}

	gen := generate.New(client, prompt.NewBuilder(cfg.Generation.BatchSize), generate.Config{
		TargetCount:    cfg.Generation.TargetCount,
		Model:          cfg.LLM.Model,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		RequestTimeout: cfg.GetLLMTimeout(),
		Delay:          cfg.GetGenerationDelay(),
		MaxAttempts:    cfg.Generation.MaxAttempts,
	}, pm)

	report, err := gen.RunFile(ctx, domains, cfg.Generation.Output, resume, cfg.Generation.Durable)
	if report == nil {
		return nil, err
	}
	fmt.Fprintf(out, "Generated %d candidates in %d calls -> %s\n", report.Accepted, report.Attempts, cfg.Generation.Output)
	for _, d := range report.Incomplete() {
		fmt.Fprintf(out, "  %s: %d/%d (%s)\n", d.Domain, d.Existing+d.Accepted, d.Target, d.Err)
	}
	return report.Counts(), err
}

func verifyStage(ctx context.Context, out io.Writer, cfg *config.Config) (map[string]int, error) {
	if err := cfg.ValidateVerify(); err != nil {
		return nil, err
	}
	sb, err := tactile.New(ctx, tactile.Config{
		Mode:           tactile.Mode(cfg.Sandbox.Mode),
		Image:          cfg.Sandbox.Image,
		Network:        cfg.Sandbox.Network,
		Memory:         cfg.Sandbox.Memory,
		PidsLimit:      cfg.Sandbox.PidsLimit,
		MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
	})
	if err != nil {
		return nil, err
	}

	v := verify.NewVerifier(sb, cfg.GetSandboxTimeout(), cfg.Sandbox.ScratchDir)
	report, err := verify.NewStage(v, pm, cfg.Verify.Durable).Run(ctx, cfg.Verify.Input, cfg.Verify.VerifiedOutput, cfg.Verify.FailuresOutput)
	if report == nil {
		return nil, err
	}
	fmt.Fprintf(out, "Verified %d/%d plans (%d failed, %d timed out) -> %s\n",
		report.Verified, report.Total, report.Failed, report.TimedOut, cfg.Verify.VerifiedOutput)
	if skipped := report.SkippedMalformed + report.SkippedEmptyPlan; skipped > 0 {
		fmt.Fprintf(out, "  skipped %d records (%d malformed, %d empty plan)\n", skipped, report.SkippedMalformed, report.SkippedEmptyPlan)
	}
	return report.Counts(), err
}

func formatStage(ctx context.Context, out io.Writer, cfg *config.Config) (map[string]int, error) {
	if err := cfg.ValidateFormat(); err != nil {
		return nil, err
	}
	report, err := dataset.NewFormatter(pm).Run(ctx, cfg.Dataset.Input, cfg.Dataset.ChatOutput, cfg.Dataset.InstructionOutput)
	if report == nil {
		return nil, err
	}
	fmt.Fprintf(out, "Wrote %d chat and %d instruction examples\n", report.Chat, report.Instruction)
	return report.Counts(), err
}
