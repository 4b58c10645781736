package config

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// builtinDeploymentSchema constrains the top-level deployment declaration.
const builtinDeploymentSchema = `
#Deployment: {
	deployment: {
		id:               string & =~"^[a-z0-9][a-z0-9-]*$"
		region?:          string
		endpoint_url?:    string
		notify_email?:    string
		instance_type?:   "ml.t2.medium" | "ml.t2.large" | "ml.m5.large" | "ml.m5.xlarge" | "ml.m5.2xlarge"
		instance_count?:  int & >=1 & <=10
		image_repository?: string
	}
	modules: [...#Module] & [_, ...]
	vars?: {[string]: _}
}
`

// builtinModuleSchema constrains a single module declaration.
const builtinModuleSchema = `
#Module: {
	name:        string & =~"^[a-z0-9_]+$"
	source:      string
	enabled?:    bool
	depends_on?: [...string]
	inputs?: {[string]: _}
	compute?: string
}
`

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry pre-loaded with the built-in schemas.
func NewSchemaRegistry(ctx *cue.Context) *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	// Module schema must be in scope when the deployment schema compiles.
	combined := builtinModuleSchema + builtinDeploymentSchema
	_ = sr.RegisterSchema("deployment", combined)
	_ = sr.RegisterSchema("module", builtinModuleSchema)

	return sr
}

// RegisterSchema compiles and stores a CUE schema under the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// newContext creates the shared CUE context.
func newContext() *cue.Context {
	return cuecontext.New()
}
