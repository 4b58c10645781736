// Package telemetry provides observability instrumentation for modelship.
//
// It combines structured logging (zerolog), distributed tracing
// (OpenTelemetry), and metrics (Prometheus) behind a single Telemetry
// aggregate that commands initialize at startup.
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// Component loggers carry structured fields through a run:
//
//	logger := tel.Logger.NewComponentLogger("orchestrator")
//	logger = logger.WithRunID(runID).WithDeployment(deploymentID)
//	logger.Info("Starting apply")
//
// Spans follow the run, module, and engine call hierarchy:
//
//	ctx, span := tel.Tracer.StartRunSpan(ctx, runID, deploymentID)
//	defer span.End()
package telemetry
