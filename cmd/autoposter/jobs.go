package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/abdulachik/autoposter/internal/app"
	"github.com/abdulachik/autoposter/internal/config"
	"github.com/abdulachik/autoposter/internal/db"
	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage job definitions",
	Long: `List job definitions from the job store and CONFIG_DIR, and manage
the definitions kept in the job store.`,
}

var jobsImportCmd = &cobra.Command{
	Use:   "import FILE...",
	Short: "Store job definitions from files",
	Long: `Read one or more JSON, TOML or YAML definition files and store them.
A stored job replaces the file of the same name in CONFIG_DIR.`,
	Args: cobra.MinimumNArgs(1),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		for _, path := range args {
			def, err := config.ReadDefinition(path)
			if err != nil {
				return err
			}
			if err := a.Import(ctx, def); err != nil {
				return fmt.Errorf("import %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s\n", def.Name)
		}
		return nil
	}),
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		defs, err := a.Definitions(ctx)
		if err != nil {
			return err
		}

		stored := make(map[string]bool)
		rows, err := a.Store.ListJobs(ctx)
		if err != nil {
			return fmt.Errorf("list jobs: %w", err)
		}
		for _, row := range rows {
			stored[row.Name] = true
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSCHEDULE\tCOUNT\tENABLED\tSELECTOR\tPOSTER\tSOURCE")
		for _, def := range defs {
			schedule := def.Schedule
			if schedule == "" {
				schedule = a.Config.DefaultSchedule + " (default)"
			}
			selType, _ := def.Selector.Type()
			posterType, _ := def.Poster.Type()
			source := "file"
			if stored[def.Name] {
				source = "store"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\t%s\t%s\n",
				def.Name, schedule, def.PostCount(), def.IsEnabled(), selType, posterType, source)
		}
		return w.Flush()
	}),
}

var jobsShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Print a job definition as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		def, err := a.Definition(ctx, args[0])
		if err != nil {
			return err
		}
		data, err := def.Marshal()
		if err != nil {
			return fmt.Errorf("encode definition: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}),
}

var jobsRemoveCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Delete a job from the job store",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		n, err := a.Store.DeleteJob(ctx, args[0])
		if err != nil {
			return fmt.Errorf("delete job: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("job %s is not in the job store", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
		return nil
	}),
}

var jobsEnableCmd = &cobra.Command{
	Use:   "enable NAME",
	Short: "Enable a stored job",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(setEnabled(true)),
}

var jobsDisableCmd = &cobra.Command{
	Use:   "disable NAME",
	Short: "Disable a stored job",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(setEnabled(false)),
}

func init() {
	jobsCmd.AddCommand(jobsImportCmd, jobsListCmd, jobsShowCmd, jobsRemoveCmd, jobsEnableCmd, jobsDisableCmd)
	rootCmd.AddCommand(jobsCmd)
}

func setEnabled(enabled bool) func(context.Context, *cobra.Command, *app.App, []string) error {
	return func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		n, err := a.Store.SetJobEnabled(ctx, db.SetJobEnabledParams{Name: args[0], Enabled: enabled})
		if err != nil {
			return fmt.Errorf("update job: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("job %s is not in the job store; import it first", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s enabled=%t\n", args[0], enabled)
		return nil
	}
}

// withApp loads configuration and the application container around fn.
func withApp(fn func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}

		a, err := app.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
		defer a.Close()

		return fn(ctx, cmd, a, args)
	}
}
