package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUnlockCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Forcibly reclaim the deployment lock",
		Long: `Forcibly reclaim a stale deployment lock.

Locks are released automatically when a run finishes; a lock only
survives when a process died mid-run. Reclaiming a lock that another
operator is actively holding lets two runs write state concurrently, so
check the holder shown by 'modelship status' first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			holder := rt.locker.Holder(rt.deploymentID())
			if err := rt.locker.ForceReclaim(rt.deploymentID()); err != nil {
				return err
			}

			if holder != "" {
				fmt.Printf("Reclaimed lock on %s, previously held by %s\n", rt.deploymentID(), holder)
			} else {
				fmt.Printf("Reclaimed lock on %s\n", rt.deploymentID())
			}
			return nil
		},
	}

	return cmd
}
