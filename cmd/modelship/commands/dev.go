package commands

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/modelship/modelship/pkg/config"
	"github.com/modelship/modelship/pkg/engine"
)

func newDevCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Development mode commands",
		Long:  `Commands for iterating on deployment configurations locally.`,
	}

	cmd.AddCommand(newDevWatchCommand())

	return cmd
}

func newDevWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-plan on every config change",
		Long: `Watch the deployment config and variable files, and print a fresh
change plan whenever one of them changes.

Watching is read-only: no lock is taken and no state is written. Parse
errors are printed and watching continues.`,
		Example: `  # Watch the default config
  modelship dev watch

  # Watch a config with variables
  modelship dev watch -c prod.cue --var-file prod-vars.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			replan := func() {
				vars, err := config.LoadVarFiles(varFiles)
				if err != nil {
					rt.logger.Error().Err(err).Msg("Failed to load var files")
					return
				}
				cfg, err := config.NewParser(rt.logger).Load(ctx, configPath, vars)
				if err != nil {
					rt.logger.Error().Err(err).Msg("Config is invalid")
					return
				}
				state, err := rt.store.Load(cfg.Config.Deployment.ID)
				if err != nil {
					rt.logger.Error().Err(err).Msg("Failed to load state")
					return
				}
				plan, err := engine.NewPlanner(rt.logger).BuildPlan(
					cfg.Config.Deployment.ID, cfg.Modules, state)
				if err != nil {
					rt.logger.Error().Err(err).Msg("Planning failed")
					return
				}
				engine.RenderPlan(os.Stdout, plan)
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer watcher.Close()

			// Watch parent directories; editors replace files on save, which
			// drops file-level watches.
			watched := map[string]bool{}
			for _, path := range append([]string{configPath}, varFiles...) {
				dir := filepath.Dir(path)
				if !watched[dir] {
					if err := watcher.Add(dir); err != nil {
						return err
					}
					watched[dir] = true
				}
			}

			rt.logger.Info().Str("config", configPath).Msg("Watching for changes")
			replan()

			var debounce *time.Timer
			for {
				select {
				case <-ctx.Done():
					return nil
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
						continue
					}
					if !watchedFile(event.Name) {
						continue
					}
					if debounce != nil {
						debounce.Stop()
					}
					debounce = time.AfterFunc(300*time.Millisecond, replan)
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					rt.logger.Error().Err(err).Msg("Watcher error")
				}
			}
		},
	}

	return cmd
}

// watchedFile reports whether a changed path is one of the watched inputs.
func watchedFile(path string) bool {
	if filepath.Clean(path) == filepath.Clean(configPath) {
		return true
	}
	for _, vf := range varFiles {
		if filepath.Clean(path) == filepath.Clean(vf) {
			return true
		}
	}
	return strings.HasSuffix(path, ".cue")
}
