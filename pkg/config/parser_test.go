package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/modelship/modelship/pkg/engine"
)

const validDeploymentCUE = `
deployment: {
	id:             "fraud-prod"
	region:         "us-east-1"
	endpoint_url:   "https://fraud.example.com"
	notify_email:   "oncall@example.com"
	instance_type:  "ml.t2.medium"
	instance_count: 1
}

modules: [
	{
		name:   "storage"
		source: "modules/storage"
		inputs: {
			versioning: true
		}
	},
	{
		name:       "model_endpoint"
		source:     "modules/endpoint"
		depends_on: ["storage"]
		inputs: {
			artifact_bucket: {from: "storage", output: "bucket_name"}
			instance_type:   deployment.instance_type
		}
	},
	{
		name:    "api_gateway"
		source:  "modules/api_gateway"
		enabled: false
	},
]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deployment.cue")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestParser_LoadValid(t *testing.T) {
	parser := NewParser(zerolog.Nop())

	parsed, err := parser.Load(context.Background(), writeConfig(t, validDeploymentCUE), nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if parsed.Config.Deployment.ID != "fraud-prod" {
		t.Errorf("Expected deployment id fraud-prod, got %q", parsed.Config.Deployment.ID)
	}
	if len(parsed.Modules) != 3 {
		t.Fatalf("Expected 3 modules, got %d", len(parsed.Modules))
	}

	// File order is preserved.
	if parsed.Modules[0].Name != "storage" || parsed.Modules[1].Name != "model_endpoint" {
		t.Errorf("Expected file order preserved, got %s, %s", parsed.Modules[0].Name, parsed.Modules[1].Name)
	}

	// Disabled modules survive parsing with the toggle off.
	if parsed.Modules[2].Enabled {
		t.Error("Expected api_gateway disabled")
	}

	endpoint := parsed.Modules[1]
	ref := endpoint.Inputs["artifact_bucket"]
	if !ref.IsReference() || ref.FromModule != "storage" || ref.Output != "bucket_name" {
		t.Errorf("Expected reference input, got %+v", ref)
	}
	lit := endpoint.Inputs["instance_type"]
	if lit.IsReference() || lit.Literal != "ml.t2.medium" {
		t.Errorf("Expected CUE-resolved literal, got %+v", lit)
	}
}

func TestParser_RejectsInstanceCountOutOfRange(t *testing.T) {
	cfg := `
deployment: {
	id:             "fraud-prod"
	instance_count: 50
}
modules: [{name: "storage", source: "modules/storage"}]
`
	parser := NewParser(zerolog.Nop())

	_, err := parser.Load(context.Background(), writeConfig(t, cfg), nil)
	if err == nil {
		t.Fatal("Expected schema rejection for instance_count 50, got nil")
	}
	if !engine.IsConfiguration(err) {
		t.Errorf("Expected configuration error, got: %v", err)
	}
}

func TestParser_RejectsBadEmail(t *testing.T) {
	cfg := `
deployment: {
	id:           "fraud-prod"
	notify_email: "not-an-email"
}
modules: [{name: "storage", source: "modules/storage"}]
`
	parser := NewParser(zerolog.Nop())

	_, err := parser.Load(context.Background(), writeConfig(t, cfg), nil)
	if err == nil {
		t.Fatal("Expected validation rejection for bad email, got nil")
	}
	if !engine.IsConfiguration(err) {
		t.Errorf("Expected configuration error, got: %v", err)
	}
}

func TestParser_RejectsEmptyModules(t *testing.T) {
	cfg := `
deployment: {id: "fraud-prod"}
modules: []
`
	parser := NewParser(zerolog.Nop())

	_, err := parser.Load(context.Background(), writeConfig(t, cfg), nil)
	if err == nil {
		t.Fatal("Expected rejection for empty module list, got nil")
	}
}

func TestParser_VarsFillPath(t *testing.T) {
	cfg := `
vars: {
	instance_type: string
}
deployment: {
	id:            "fraud-prod"
	instance_type: vars.instance_type
}
modules: [{name: "storage", source: "modules/storage"}]
`
	parser := NewParser(zerolog.Nop())

	parsed, err := parser.Load(context.Background(), writeConfig(t, cfg),
		map[string]interface{}{"instance_type": "ml.m5.large"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if parsed.Config.Deployment.InstanceType != "ml.m5.large" {
		t.Errorf("Expected var applied, got %q", parsed.Config.Deployment.InstanceType)
	}
}

func TestParser_ComputeBlock(t *testing.T) {
	cfg := `
deployment: {
	id:     "fraud-prod"
	region: "us-east-1"
}
modules: [
	{
		name:   "model_endpoint"
		source: "modules/endpoint"
		inputs: {
			base_name: "fraud-detection"
		}
		compute: """
			endpoint_name = base_name + "-" + deployment["region"]
			_scratch = "hidden"
			"""
	},
]
`
	parser := NewParser(zerolog.Nop())

	parsed, err := parser.Load(context.Background(), writeConfig(t, cfg), nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	inputs := parsed.Modules[0].Inputs
	if inputs["endpoint_name"].Literal != "fraud-detection-us-east-1" {
		t.Errorf("Expected computed input, got %+v", inputs["endpoint_name"])
	}
	// Underscore globals stay private.
	if _, ok := inputs["_scratch"]; ok {
		t.Error("Expected underscore global excluded")
	}
	// Declared inputs are preserved.
	if inputs["base_name"].Literal != "fraud-detection" {
		t.Errorf("Expected declared input preserved, got %+v", inputs["base_name"])
	}
}

func TestParser_MalformedReference(t *testing.T) {
	cfg := `
deployment: {id: "fraud-prod"}
modules: [
	{
		name:   "model_endpoint"
		source: "modules/endpoint"
		inputs: {
			artifact_bucket: {from: "storage"}
		}
	},
]
`
	parser := NewParser(zerolog.Nop())

	_, err := parser.Load(context.Background(), writeConfig(t, cfg), nil)
	if err == nil {
		t.Fatal("Expected rejection for reference missing output, got nil")
	}
	if !engine.IsConfiguration(err) {
		t.Errorf("Expected configuration error, got: %v", err)
	}
}
