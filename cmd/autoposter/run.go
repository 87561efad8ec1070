package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/abdulachik/autoposter/internal/app"
	"github.com/abdulachik/autoposter/internal/config"
	"github.com/abdulachik/autoposter/internal/content"
	"github.com/abdulachik/autoposter/internal/job"
	"github.com/abdulachik/autoposter/internal/selector"
	"github.com/spf13/cobra"
)

var (
	runCount  int
	runDryRun bool
)

var runCmd = &cobra.Command{
	Use:   "run NAME",
	Short: "Run one cycle of a job",
	Long: `Select content for the named job, post it and dispose of what was posted.

The job is looked up in the job store first, then in CONFIG_DIR.

Examples:
  autoposter run pictures             # Post the configured number of items
  autoposter run pictures --count 3   # Post up to three items
  autoposter run pictures --dry-run   # Show what would be posted`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVarP(&runCount, "count", "n", 0, "Number of posts (default: the job's count)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Show what would be posted without posting")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	// A signal stops new posts from starting; a delivery in progress finishes.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if runDryRun {
		err = cfg.Validate()
	} else {
		err = cfg.ValidateForPosting()
	}
	if err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer a.Close()

	def, err := a.Definition(ctx, args[0])
	if err != nil {
		return err
	}

	if runDryRun {
		sel, err := a.BuildSelector(def)
		if err != nil {
			return err
		}
		count := runCount
		if count <= 0 {
			count = def.PostCount()
		}
		return preview(ctx, cmd, def.Name, sel, count)
	}

	j, err := a.BuildJob(def)
	if err != nil {
		return err
	}

	sum, err := j.Run(ctx, job.Options{Count: runCount, Trigger: job.TriggerManual})
	if err != nil {
		return fmt.Errorf("job %s: %w", def.Name, err)
	}

	slog.Info("job finished",
		"job", def.Name,
		"run_id", sum.RunID,
		"status", sum.Status,
		"posted", sum.Posted,
		"requested", sum.Requested,
	)
	return nil
}

// preview lists what a cycle would post. Nothing is sent or disposed.
func preview(ctx context.Context, cmd *cobra.Command, name string, sel selector.Selector, count int) error {
	posts, err := sel.Choose(ctx, count)
	if err != nil && !errors.Is(err, content.ErrInvalidPost) {
		return fmt.Errorf("select posts: %w", err)
	}
	if err != nil {
		slog.Warn("some candidates would be skipped", "error", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "=== DRY RUN: %s ===\n\n", name)
	if len(posts) == 0 {
		fmt.Fprintln(out, "No candidates.")
		return nil
	}

	for i, post := range posts {
		fmt.Fprintf(out, "%d. %s\n", i+1, post.Origin)
		for _, m := range post.Media {
			fmt.Fprintf(out, "   %-8s %s\n", m.Kind, m.Name())
		}
		if post.Caption != "" {
			fmt.Fprintf(out, "   caption: %q\n", truncate(post.Caption, 80))
		}
		if chunks := len(post.Split(0)); chunks > 1 {
			fmt.Fprintf(out, "   sent as %d messages\n", chunks)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
