package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/abdulachik/autoposter/internal/app"
	"github.com/abdulachik/autoposter/internal/db"
	"github.com/spf13/cobra"
)

var (
	historyJob   string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent job runs",
	Long: `Display the most recent runs, newest first, with a summary of run
outcomes.

Examples:
  autoposter history
  autoposter history --job pictures --limit 5`,
	Args: cobra.NoArgs,
	RunE: withApp(runHistory),
}

func init() {
	historyCmd.Flags().StringVar(&historyJob, "job", "", "Only show runs of this job")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
	counts, err := a.Store.CountRunsByStatus(ctx, historyJob)
	if err != nil {
		return fmt.Errorf("count runs: %w", err)
	}

	runs, err := a.Store.ListRuns(ctx, db.ListRunsParams{Job: historyJob, Limit: int64(historyLimit)})
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "=== Autoposter History ===")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Database: %s\n", a.Config.DatabasePath)
	if historyJob != "" {
		fmt.Fprintf(out, "Job: %s\n", historyJob)
	}
	fmt.Fprintln(out)

	var total int64
	for _, c := range counts {
		total += c.Count
	}
	fmt.Fprintf(out, "Runs: %d\n", total)
	for _, c := range counts {
		fmt.Fprintf(out, "  %s: %d\n", c.Status, c.Count)
	}
	fmt.Fprintln(out)

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tJOB\tTRIGGER\tSTATUS\tPOSTED\tDURATION\tERROR")
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt.Valid {
			duration = r.FinishedAt.Time.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			r.Job,
			r.Trigger,
			r.Status,
			r.Posted,
			r.Requested,
			duration,
			firstLine(r.Error.String),
		)
	}
	return w.Flush()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
