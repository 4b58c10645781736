package commands

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/modelship/modelship/pkg/config"
	"github.com/modelship/modelship/pkg/engine"
	"github.com/modelship/modelship/pkg/policy"
	"github.com/modelship/modelship/pkg/provision"
	"github.com/modelship/modelship/pkg/state"
	"github.com/modelship/modelship/pkg/telemetry"
)

// runtime bundles the dependencies shared by every command: telemetry, the
// parsed deployment config, and the state layer rooted at --state-dir.
type runtime struct {
	tel     *telemetry.Telemetry
	logger  zerolog.Logger
	cfg     *config.ParsedConfig
	store   *state.FileStore
	locker  *state.FileLocker
	journal *state.SQLiteJournal
}

// newRuntime initializes telemetry, loads the deployment config, and opens
// the state layer. Callers must call close when done.
func newRuntime(ctx context.Context) (*runtime, error) {
	tel, err := setupTelemetry()
	if err != nil {
		return nil, err
	}
	logger := tel.Logger.Zerolog()

	vars, err := config.LoadVarFiles(varFiles)
	if err != nil {
		return nil, err
	}

	parser := config.NewParser(logger)
	cfg, err := parser.Load(ctx, configPath, vars)
	if err != nil {
		return nil, err
	}

	store, err := state.NewFileStore(filepath.Join(stateDir, "state"), logger)
	if err != nil {
		return nil, err
	}

	locker, err := state.NewFileLocker(filepath.Join(stateDir, "locks"), logger)
	if err != nil {
		return nil, err
	}

	journal, err := state.NewSQLiteJournal(filepath.Join(stateDir, "journal.db"), logger)
	if err != nil {
		return nil, err
	}
	if err := journal.Init(ctx); err != nil {
		return nil, err
	}

	return &runtime{
		tel:     tel,
		logger:  logger,
		cfg:     cfg,
		store:   store,
		locker:  locker,
		journal: journal,
	}, nil
}

func (rt *runtime) close() {
	if rt.journal != nil {
		if err := rt.journal.Close(); err != nil {
			rt.logger.Warn().Err(err).Msg("Failed to close journal")
		}
	}
	_ = rt.tel.Shutdown(context.Background())
}

func (rt *runtime) deploymentID() string {
	return rt.cfg.Config.Deployment.ID
}

// orchestratorOptions controls how buildOrchestrator wires the run.
type orchestratorOptions struct {
	autoApprove    bool
	engineBinary   string
	engineTimeout  time.Duration
	lockTimeout    time.Duration
	confirmTimeout time.Duration
	policyDir      string
}

// buildOrchestrator wires the provisioner, confirmer, and policy engine
// into an orchestrator for apply and destroy runs.
func (rt *runtime) buildOrchestrator(ctx context.Context, opts orchestratorOptions) (*engine.Orchestrator, error) {
	provisioner, err := provision.NewExecProvisioner(provision.Options{
		Binary:  opts.engineBinary,
		Timeout: opts.engineTimeout,
		Logger:  rt.logger,
	})
	if err != nil {
		return nil, err
	}

	var confirmer engine.Confirmer
	if opts.autoApprove {
		confirmer = engine.AutoConfirmer{}
	} else {
		confirmer = engine.NewPromptConfirmer(os.Stdin, os.Stdout, opts.confirmTimeout)
	}

	policyEngine, err := policy.NewEngine(rt.logger)
	if err != nil {
		return nil, err
	}
	if opts.policyDir != "" {
		if err := policyEngine.LoadPolicies(ctx, []string{opts.policyDir}); err != nil {
			return nil, err
		}
	}

	return engine.NewOrchestrator(engine.OrchestratorOptions{
		Provisioner: provisioner,
		Store:       rt.store,
		Locker:      rt.locker,
		Confirmer:   confirmer,
		Journal:     rt.journal,
		Policy:      policyEngine,
		Logger:      rt.logger,
		LockTimeout: opts.lockTimeout,
	})
}

// setupTelemetry builds the telemetry stack from the global flags.
func setupTelemetry() (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = logLevel
	if jsonOutput {
		cfg.Logging.Format = "json"
	}
	if metricsListen != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddress = metricsListen
	}
	if traceEndpoint != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = "otlp"
		cfg.Tracing.Endpoint = traceEndpoint
	}

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return nil, err
	}
	if err := tel.StartMetricsServer(); err != nil {
		return nil, err
	}
	return tel, nil
}
