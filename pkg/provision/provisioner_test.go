package provision

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/modelship/modelship/pkg/engine"
)

// writeFakeEngine writes a shell script standing in for the engine binary.
func writeFakeEngine(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-engine")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("Failed to write fake engine: %v", err)
	}
	return path
}

func newTestProvisioner(t *testing.T, script string) *ExecProvisioner {
	t.Helper()
	p, err := NewExecProvisioner(Options{
		Binary: writeFakeEngine(t, script),
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("Failed to create provisioner: %v", err)
	}
	return p
}

func testRequest() engine.ModuleRequest {
	return engine.ModuleRequest{
		DeploymentID: "fraud-prod",
		Module:       "endpoint",
		Source:       "modules/endpoint",
		Inputs:       map[string]interface{}{"instance_type": "ml.t2.medium"},
	}
}

func TestExecProvisioner_ApplySuccess(t *testing.T) {
	p := newTestProvisioner(t, `cat > /dev/null
echo '{"outputs":{"endpoint_name":"fraud-detection"},"summary":"created 3 resources","changed":true}'`)

	res, err := p.Apply(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if res.Outputs["endpoint_name"] != "fraud-detection" {
		t.Errorf("Expected output passed through, got %v", res.Outputs)
	}
	if !res.Changed {
		t.Error("Expected changed=true")
	}
	if res.Summary != "created 3 resources" {
		t.Errorf("Expected summary passed through, got %q", res.Summary)
	}
}

func TestExecProvisioner_OperationArgument(t *testing.T) {
	// The fake engine echoes its first argument back as the summary.
	p := newTestProvisioner(t, `cat > /dev/null
echo "{\"summary\":\"$1\",\"changed\":false}"`)

	res, err := p.Plan(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if res.Summary != "plan" {
		t.Errorf("Expected operation plan passed as argument, got %q", res.Summary)
	}

	res, err = p.Destroy(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if res.Summary != "destroy" {
		t.Errorf("Expected operation destroy passed as argument, got %q", res.Summary)
	}
}

func TestExecProvisioner_ReceivesInvocationOnStdin(t *testing.T) {
	// The fake engine greps its stdin for the module name.
	p := newTestProvisioner(t, `if grep -q '"module":"endpoint"'; then
echo '{"summary":"ok","changed":true}'
else
echo '{"error":"missing module"}'
fi`)

	if _, err := p.Apply(context.Background(), testRequest()); err != nil {
		t.Fatalf("Expected invocation on stdin, got: %v", err)
	}
}

func TestExecProvisioner_NonzeroExit(t *testing.T) {
	p := newTestProvisioner(t, `cat > /dev/null
echo "quota exceeded for ml.m5.large" >&2
exit 1`)

	_, err := p.Apply(context.Background(), testRequest())
	if err == nil {
		t.Fatal("Expected error for nonzero exit, got nil")
	}
	if !engine.IsProvisioning(err) {
		t.Errorf("Expected provisioning error, got: %v", err)
	}
}

func TestExecProvisioner_StructuredError(t *testing.T) {
	p := newTestProvisioner(t, `cat > /dev/null
echo '{"error":"resource already exists"}'`)

	_, err := p.Apply(context.Background(), testRequest())
	if err == nil {
		t.Fatal("Expected error for structured failure, got nil")
	}
	if !engine.IsProvisioning(err) {
		t.Errorf("Expected provisioning error, got: %v", err)
	}
}

func TestExecProvisioner_MalformedOutput(t *testing.T) {
	p := newTestProvisioner(t, `cat > /dev/null
echo 'not json'`)

	_, err := p.Apply(context.Background(), testRequest())
	if err == nil {
		t.Fatal("Expected error for malformed output, got nil")
	}
	if !engine.IsProvisioning(err) {
		t.Errorf("Expected provisioning error, got: %v", err)
	}
}

func TestExecProvisioner_Timeout(t *testing.T) {
	p, err := NewExecProvisioner(Options{
		Binary:  writeFakeEngine(t, "sleep 10"),
		Timeout: 50 * time.Millisecond,
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("Failed to create provisioner: %v", err)
	}

	_, err = p.Apply(context.Background(), testRequest())
	if err == nil {
		t.Fatal("Expected timeout error, got nil")
	}
	if !engine.IsProvisioning(err) {
		t.Errorf("Expected provisioning error, got: %v", err)
	}
}

func TestExecProvisioner_RequiresBinary(t *testing.T) {
	_, err := NewExecProvisioner(Options{Logger: zerolog.Nop()})
	if err == nil {
		t.Fatal("Expected error for missing binary, got nil")
	}
	if !engine.IsConfiguration(err) {
		t.Errorf("Expected configuration error, got: %v", err)
	}
}
