package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"agenix/internal/dataset"
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Inspect and fix chat training files",
}

var datasetRepairCmd = &cobra.Command{
	Use:   "repair [file]",
	Short: "Rewrite a chat file so every message has a known role and string content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd.Context(), "dataset-repair", func(ctx context.Context) (map[string]int, error) {
			report, err := dataset.Repair(ctx, args[0])
			if err != nil {
				return nil, err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Repaired %s: kept %d lines, skipped %d, dropped %d messages, coerced %d contents\n",
				args[0], report.Kept, report.Skipped, report.DroppedMessages, report.CoercedContent)
			return report.Counts(), nil
		})
	},
}

var datasetValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check a chat file without modifying it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd.Context(), "dataset-validate", func(ctx context.Context) (map[string]int, error) {
			report, err := dataset.Validate(ctx, args[0])
			if err != nil {
				return nil, err
			}
			out := cmd.OutOrStdout()
			counts := map[string]int{"lines": report.Lines, "issues": len(report.Issues)}
			if report.Valid() {
				fmt.Fprintf(out, "%s: %d lines, no issues\n", args[0], report.Lines)
				return counts, nil
			}
			for _, issue := range report.Issues {
				fmt.Fprintln(out, issue.String())
			}
			return counts, fmt.Errorf("%s: found %d issues in %d lines", args[0], len(report.Issues), report.Lines)
		})
	},
}
