package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"blurchain/internal/fileutil"
	"blurchain/internal/store"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("limit") {
				limit = cfg.Workflow.HistoryLimit
			}

			st, err := store.Open(cfg)
			if err != nil {
				return fmt.Errorf("open run store: %w", err)
			}
			defer st.Close()

			runs, err := st.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Started", "Level", "State", "Stages", "Duration", "Result"},
				historyRows(runs, time.Now()),
				[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show (0 for all)")
	return cmd
}

func historyRows(runs []*store.Run, now time.Time) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			strconv.Itoa(r.BlurLevel),
			r.State,
			stageSummary(r.Stages),
			r.Duration(now).Round(time.Second).String(),
			runResult(r),
		})
	}
	return rows
}

// stageSummary renders stage states compactly, e.g. "C✓ B✓ B✗ S✗".
func stageSummary(stages []store.Stage) string {
	parts := make([]string, 0, len(stages))
	for _, s := range stages {
		initial := "?"
		if s.Kind != "" {
			initial = strings.ToUpper(s.Kind[:1])
		}
		parts = append(parts, initial+stateGlyph(s.State))
	}
	return strings.Join(parts, " ")
}

func stateGlyph(state string) string {
	switch state {
	case store.StateSucceeded:
		return "✓"
	case store.StateFailed:
		return "✗"
	case store.StateCancelled:
		return "-"
	case store.StateRunning:
		return "…"
	default:
		return "·"
	}
}

func runResult(r *store.Run) string {
	if r.OutputLocator != "" {
		if path, err := fileutil.PathFromLocator(r.OutputLocator); err == nil {
			return path
		}
		return r.OutputLocator
	}
	return r.ErrorMessage
}
