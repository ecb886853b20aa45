package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"blurchain/internal/workers"
)

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove intermediate blur artifacts from staging",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			result := workers.NewCleanup(cfg.Paths.StagingDir, logger).Sweep(cmd.Context())
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderStatusLine("Removed", statusOK, fmt.Sprintf("%d artifact(s) from %s", len(result.Removed), cfg.Paths.StagingDir), colorize))
			for _, e := range result.Errors {
				fmt.Fprintln(out, renderStatusLine("Failed", statusError, fmt.Sprintf("%s: %v", e.Path, e.Error), colorize))
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("cleanup left %d artifact(s) behind", len(result.Errors))
			}
			return nil
		},
	}
}
