package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for modelship runs.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Module metrics
	moduleActions  *prometheus.CounterVec
	moduleDuration *prometheus.HistogramVec

	// Engine metrics
	engineCalls  *prometheus.CounterVec
	engineErrors *prometheus.CounterVec

	// Verification metrics
	verificationChecks *prometheus.CounterVec

	// Lock metrics
	lockAcquisitions *prometheus.CounterVec

	// Error metrics
	errorsByCode *prometheus.CounterVec

	// System metrics
	activeRuns prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
// When metrics are disabled all recording methods are no-ops.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of runs started",
			},
			[]string{"operation"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of runs completed",
			},
			[]string{"operation", "phase"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of run execution in seconds",
				Buckets:   buckets,
			},
			[]string{"operation", "phase"},
		),

		moduleActions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "module_actions_total",
				Help:      "Total number of module actions executed",
			},
			[]string{"action", "status"},
		),
		moduleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "module_action_duration_seconds",
				Help:      "Duration of module actions in seconds",
				Buckets:   buckets,
			},
			[]string{"action"},
		),

		engineCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_calls_total",
				Help:      "Total number of provisioning engine invocations",
			},
			[]string{"operation"},
		),
		engineErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_errors_total",
				Help:      "Total number of provisioning engine failures",
			},
			[]string{"operation"},
		),

		verificationChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verification_checks_total",
				Help:      "Total number of post-deploy verification checks",
			},
			[]string{"check", "outcome"},
		),

		lockAcquisitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lock_acquisitions_total",
				Help:      "Total number of deployment lock acquisition attempts",
			},
			[]string{"outcome"},
		),

		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors by code",
			},
			[]string{"code"},
		),

		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of active runs",
			},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.moduleActions,
		m.moduleDuration,
		m.engineCalls,
		m.engineErrors,
		m.verificationChecks,
		m.lockAcquisitions,
		m.errorsByCode,
		m.activeRuns,
	)

	return m, nil
}

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted(operation string) {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.WithLabelValues(operation).Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted records a completed run with its terminal phase.
func (m *Metrics) RecordRunCompleted(operation, phase string, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(operation, phase).Inc()
	m.runDuration.WithLabelValues(operation, phase).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// RecordModuleAction records the execution of a planned module action.
func (m *Metrics) RecordModuleAction(action, status string, duration time.Duration) {
	if m.moduleActions == nil {
		return
	}
	m.moduleActions.WithLabelValues(action, status).Inc()
	m.moduleDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordEngineCall records a provisioning engine invocation.
func (m *Metrics) RecordEngineCall(operation string) {
	if m.engineCalls == nil {
		return
	}
	m.engineCalls.WithLabelValues(operation).Inc()
}

// RecordEngineError records a provisioning engine failure.
func (m *Metrics) RecordEngineError(operation string) {
	if m.engineErrors == nil {
		return
	}
	m.engineErrors.WithLabelValues(operation).Inc()
}

// RecordVerificationCheck records the outcome of a verification check.
func (m *Metrics) RecordVerificationCheck(check, outcome string) {
	if m.verificationChecks == nil {
		return
	}
	m.verificationChecks.WithLabelValues(check, outcome).Inc()
}

// RecordLockAcquisition records a lock acquisition attempt outcome.
func (m *Metrics) RecordLockAcquisition(outcome string) {
	if m.lockAcquisitions == nil {
		return
	}
	m.lockAcquisitions.WithLabelValues(outcome).Inc()
}

// RecordError records an error by code.
func (m *Metrics) RecordError(code string) {
	if m.errorsByCode == nil {
		return
	}
	m.errorsByCode.WithLabelValues(code).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
