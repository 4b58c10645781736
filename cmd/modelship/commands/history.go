package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit int
		runID string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past runs from the journal",
		Long: `Show past runs for the deployment from the run journal, newest first.

With --run, shows the per-module outcomes recorded during that run
instead of the run list.`,
		Example: `  # Show the last 20 runs
  modelship history

  # Show what a specific run did per module
  modelship history --run 4f7c2a1e-...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			if runID != "" {
				outcomes, err := rt.journal.ListModuleOutcomes(ctx, runID)
				if err != nil {
					return err
				}
				if len(outcomes) == 0 {
					fmt.Printf("No module records for run %s\n", runID)
					return nil
				}
				for _, o := range outcomes {
					line := fmt.Sprintf("%s  %-20s %-8s %s",
						o.RecordedAt.Format("2006-01-02 15:04:05"), o.Module, o.Action, o.Status)
					if o.Detail != "" {
						line += "  " + o.Detail
					}
					fmt.Println(line)
				}
				return nil
			}

			runs, err := rt.journal.ListRuns(ctx, rt.deploymentID(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded.")
				return nil
			}

			for _, run := range runs {
				completed := "running"
				if run.CompletedAt != nil {
					completed = run.CompletedAt.Sub(run.StartedAt).Round(time.Second).String()
				}
				line := fmt.Sprintf("%s  %s  %-8s %-10s %s",
					run.StartedAt.Format("2006-01-02 15:04:05"), run.ID, run.Operation, run.Phase, completed)
				if run.Error != "" {
					line += "  " + run.Error
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to show")
	cmd.Flags().StringVar(&runID, "run", "", "show per-module outcomes for this run")

	return cmd
}
