package commands

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/modelship/modelship/pkg/engine"
)

func newPlanCommand() *cobra.Command {
	var (
		outFile string
		dotFile string
		destroy bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compute the change plan",
		Long: `Compute the change plan by comparing the declared configuration with
recorded deployment state.

Planning is read-only: it takes no lock and writes no state. Modules
whose configuration hash matches their provisioned record plan as no-ops;
failed modules re-plan as updates.`,
		Example: `  # Show the plan for the default config
  modelship plan

  # Save the plan and the dependency graph
  modelship plan --out plan.json --dot graph.dot

  # Preview a teardown
  modelship plan --destroy`,
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

			planner := engine.NewPlanner(rt.logger)
			var plan *engine.ChangePlan
			if destroy {
				plan, err = planner.BuildDestroyPlan(rt.deploymentID(), rt.cfg.Modules, state)
			} else {
				plan, err = planner.BuildPlan(rt.deploymentID(), rt.cfg.Modules, state)
			}
			if err != nil {
				return err
			}

			engine.RenderPlan(os.Stdout, plan)

			if outFile != "" {
				data, err := json.MarshalIndent(plan, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(outFile, data, 0o644); err != nil {
					return err
				}
				rt.logger.Info().Str("out", outFile).Msg("Plan written")
			}

			if dotFile != "" {
				resolver := engine.NewResolver()
				if _, err := resolver.Resolve(rt.cfg.Modules); err != nil {
					return err
				}
				if err := os.WriteFile(dotFile, []byte(resolver.ToDOT()), 0o644); err != nil {
					return err
				}
				rt.logger.Info().Str("dot", dotFile).Msg("Dependency graph written")
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write the plan as JSON to this file")
	cmd.Flags().StringVar(&dotFile, "dot", "", "write the module dependency graph in DOT format")
	cmd.Flags().BoolVar(&destroy, "destroy", false, "plan a teardown instead of an apply")

	return cmd
}
