package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recorded deployment state",
		Long: `Show the recorded state of every module in the deployment, the state
version, and the current lock holder if any.

Status is read-only and reflects the last checkpointed state; it does not
query the provisioning engine.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			state, err := rt.store.Load(rt.deploymentID())
			if err != nil {
				return err
			}

			fmt.Printf("Deployment: %s\n", state.DeploymentID)
			fmt.Printf("State version: %d\n", state.Version)
			if !state.UpdatedAt.IsZero() {
				fmt.Printf("Last updated: %s\n", state.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
			}
			if holder := rt.locker.Holder(rt.deploymentID()); holder != "" {
				fmt.Printf("Locked by: %s\n", holder)
			}

			if len(state.Modules) == 0 {
				fmt.Println("\nNo modules recorded.")
				return nil
			}

			names := make([]string, 0, len(state.Modules))
			for name := range state.Modules {
				names = append(names, name)
			}
			sort.Strings(names)

			fmt.Println("\nModules:")
			for _, name := range names {
				record := state.Modules[name]
				line := fmt.Sprintf("  %-20s %s", name, record.Status)
				if record.Error != "" {
					line += fmt.Sprintf("  (%s)", record.Error)
				}
				fmt.Println(line)
			}

			return nil
		},
	}

	return cmd
}
