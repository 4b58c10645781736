package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modelship/modelship/pkg/config"
	"github.com/modelship/modelship/pkg/engine"
)

func newValidateCommand() *cobra.Command {
	var modulesDir string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the deployment configuration",
		Long: `Validate the deployment configuration without touching state.

Validation checks:
  - CUE schema conformance and concrete values
  - Module graph resolution (unknown dependencies, cycles)
  - Declared inputs and references against module manifests, when
    module.yaml manifests are present under --modules-dir`,
		Example: `  # Validate the default config
  modelship validate

  # Validate with variables and manifest checks
  modelship validate -c prod.cue --var-file prod-vars.yaml --modules-dir ./modules`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			if _, err := engine.NewResolver().Resolve(rt.cfg.Modules); err != nil {
				return err
			}

			if modulesDir != "" {
				manifests := config.NewManifestLoader(modulesDir)
				if err := manifests.CheckDeclaration(rt.cfg.Modules); err != nil {
					return err
				}
			}

			fmt.Printf("Configuration valid: %s (%d modules)\n",
				rt.cfg.SourceFile, len(rt.cfg.Modules))
			return nil
		},
	}

	cmd.Flags().StringVar(&modulesDir, "modules-dir", "", "directory holding module sources and manifests")

	return cmd
}
