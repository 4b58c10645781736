package verify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/modelship/modelship/pkg/engine"
)

// healthyModel serves a well-behaved inference endpoint.
func healthyModel() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/model-info", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"model": "fraud-detection", "version": "1"})
	})
	mux.HandleFunc("/invocations", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"fraud_probability": []float64{0.12},
			"detailed_predictions": []map[string]interface{}{
				{"fraud_probability": 0.12, "risk_level": "LOW"},
			},
		})
	})
	return mux
}

func newTestVerifier(t *testing.T, url string) *Verifier {
	t.Helper()
	v, err := NewVerifier(Options{
		BaseURL:      url,
		ReadyTimeout: time.Second,
		PollInterval: 10 * time.Millisecond,
		Logger:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("Failed to create verifier: %v", err)
	}
	return v
}

func checkByName(t *testing.T, report *engine.VerificationReport, name string) engine.CheckResult {
	t.Helper()
	for _, c := range report.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("Check %s not found in report: %+v", name, report.Checks)
	return engine.CheckResult{}
}

func TestVerifier_HealthyEndpoint(t *testing.T) {
	srv := httptest.NewServer(healthyModel())
	defer srv.Close()

	report, err := newTestVerifier(t, srv.URL).Verify(context.Background(), "fraud-prod")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if report.Outcome() != engine.CheckPass {
		t.Errorf("Expected pass, got %s", report.Outcome())
	}
	if checkByName(t, report, "readiness").Outcome != engine.CheckPass {
		t.Error("Expected readiness to pass")
	}
	smoke := checkByName(t, report, "smoke_test")
	if smoke.Outcome != engine.CheckPass {
		t.Errorf("Expected smoke test to pass, got %s: %s", smoke.Outcome, smoke.Detail)
	}
}

func TestVerifier_ReadinessEventuallySucceeds(t *testing.T) {
	var probes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		if probes.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	healthy := healthyModel()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		healthy.ServeHTTP(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	report, err := newTestVerifier(t, srv.URL).Verify(context.Background(), "fraud-prod")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if probes.Load() < 3 {
		t.Errorf("Expected at least 3 probes, got %d", probes.Load())
	}
	if checkByName(t, report, "readiness").Outcome != engine.CheckPass {
		t.Error("Expected readiness to pass after retries")
	}
}

func TestVerifier_ReadinessTimeoutIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	v, err := NewVerifier(Options{
		BaseURL:      srv.URL,
		ReadyTimeout: 50 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
		Logger:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("Failed to create verifier: %v", err)
	}

	report, err := v.Verify(context.Background(), "fraud-prod")
	if err == nil {
		t.Fatal("Expected verification error, got nil")
	}
	if !engine.IsVerification(err) {
		t.Errorf("Expected verification error, got: %v", err)
	}

	// The partial report still carries the readiness failure.
	if report == nil {
		t.Fatal("Expected a partial report alongside the error")
	}
	if checkByName(t, report, "readiness").Outcome != engine.CheckFail {
		t.Error("Expected readiness recorded as failed")
	}
	// Remaining checks were skipped.
	if len(report.Checks) != 1 {
		t.Errorf("Expected only the readiness check, got %d", len(report.Checks))
	}
}

func TestVerifier_SmokeFailureIsNonFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/model-info", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/invocations", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	report, err := newTestVerifier(t, srv.URL).Verify(context.Background(), "fraud-prod")
	if err != nil {
		t.Fatalf("Expected smoke failure to stay non-fatal, got: %v", err)
	}

	smoke := checkByName(t, report, "smoke_test")
	if smoke.Outcome != engine.CheckFail {
		t.Errorf("Expected smoke test recorded as failed, got %s", smoke.Outcome)
	}
	// The aggregate outcome reflects the failure.
	if report.Outcome() != engine.CheckFail {
		t.Errorf("Expected aggregate fail, got %s", report.Outcome())
	}
}

func TestVerifier_UnknownRiskLevelFailsSmoke(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/model-info", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/invocations", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"fraud_probability": []float64{0.5},
			"detailed_predictions": []map[string]interface{}{
				{"fraud_probability": 0.5, "risk_level": "BANANAS"},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	report, err := newTestVerifier(t, srv.URL).Verify(context.Background(), "fraud-prod")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if checkByName(t, report, "smoke_test").Outcome != engine.CheckFail {
		t.Error("Expected unknown risk level to fail the smoke test")
	}
}

func TestVerifier_LatencyWarning(t *testing.T) {
	mux := http.NewServeMux()
	delayed := healthyModel()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/invocations" {
			time.Sleep(30 * time.Millisecond)
		}
		delayed.ServeHTTP(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	v, err := NewVerifier(Options{
		BaseURL:      srv.URL,
		ReadyTimeout: time.Second,
		PollInterval: 10 * time.Millisecond,
		LatencyLimit: time.Millisecond,
		Logger:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("Failed to create verifier: %v", err)
	}

	report, err := v.Verify(context.Background(), "fraud-prod")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	latency := checkByName(t, report, "latency")
	if latency.Outcome != engine.CheckWarn {
		t.Errorf("Expected latency warning, got %s: %s", latency.Outcome, latency.Detail)
	}
	// Warnings do not fail the report.
	if report.Outcome() != engine.CheckWarn {
		t.Errorf("Expected aggregate warn, got %s", report.Outcome())
	}
}

func TestVerifier_RequiresBaseURL(t *testing.T) {
	_, err := NewVerifier(Options{Logger: zerolog.Nop()})
	if err == nil {
		t.Fatal("Expected error for missing base URL, got nil")
	}
	if !engine.IsConfiguration(err) {
		t.Errorf("Expected configuration error, got: %v", err)
	}
}
