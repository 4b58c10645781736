// Package config loads deployment declarations: CUE configuration files
// validated against built-in schemas, with optional YAML variable files and
// Starlark compute blocks for derived inputs.
package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/modelship/modelship/pkg/engine"
)

// Parser loads and validates deployment configuration files.
type Parser struct {
	ctx      *cue.Context
	registry *SchemaRegistry
	starlark *StarlarkEvaluator
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewParser creates a parser with the built-in schemas registered.
func NewParser(logger zerolog.Logger) *Parser {
	ctx := newContext()
	return &Parser{
		ctx:      ctx,
		registry: NewSchemaRegistry(ctx),
		starlark: NewStarlarkEvaluator(30 * time.Second),
		validate: validator.New(),
		logger:   logger.With().Str("component", "config").Logger(),
	}
}

// Load parses the configuration file at path, applies vars, validates
// against the deployment schema, and converts the declaration for the
// engine. Module order in the result matches file order.
func (p *Parser) Load(ctx context.Context, path string, vars map[string]interface{}) (*ParsedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, engine.NewConfigurationError(
			fmt.Sprintf("failed to read configuration %s", path), err)
	}

	value := p.ctx.CompileBytes(data)
	if err := value.Err(); err != nil {
		return nil, cueError(path, err)
	}

	if len(vars) > 0 {
		value = value.FillPath(cue.ParsePath("vars"), vars)
		if err := value.Err(); err != nil {
			return nil, cueError(path, err)
		}
	}

	schema, ok := p.registry.GetSchema("deployment")
	if !ok {
		return nil, engine.NewConfigurationError("deployment schema not registered", nil).
			WithCode(engine.ErrCodeInternal)
	}
	constrained := value.Unify(schema.LookupPath(cue.ParsePath("#Deployment")))
	if err := constrained.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(path, err)
	}

	cfg := &DeploymentConfig{}
	if err := constrained.Decode(cfg); err != nil {
		return nil, cueError(path, err)
	}

	if err := p.validate.Struct(cfg); err != nil {
		return nil, engine.NewConfigurationError(
			fmt.Sprintf("configuration %s failed validation", path), err)
	}

	modules, err := p.convertModules(ctx, cfg)
	if err != nil {
		return nil, err
	}

	p.logger.Debug().
		Str("file", path).
		Str("deployment", cfg.Deployment.ID).
		Int("modules", len(modules)).
		Msg("Configuration loaded")

	return &ParsedConfig{
		Config:     cfg,
		Modules:    modules,
		SourceFile: path,
		ParsedAt:   time.Now().UTC(),
	}, nil
}

// convertModules turns module specs into engine declarations, running
// compute blocks and interpreting input references.
func (p *Parser) convertModules(ctx context.Context, cfg *DeploymentConfig) ([]engine.Module, error) {
	modules := make([]engine.Module, 0, len(cfg.Modules))

	for _, spec := range cfg.Modules {
		m := engine.Module{
			Name:      spec.Name,
			Source:    spec.Source,
			Enabled:   spec.IsEnabled(),
			DependsOn: spec.DependsOn,
			Inputs:    make(map[string]engine.InputValue, len(spec.Inputs)),
		}

		for name, raw := range spec.Inputs {
			value, err := convertInput(spec.Name, name, raw)
			if err != nil {
				return nil, err
			}
			m.Inputs[name] = value
		}

		if spec.Compute != "" {
			if err := p.runCompute(ctx, cfg, spec, &m); err != nil {
				return nil, err
			}
		}

		modules = append(modules, m)
	}

	return modules, nil
}

// runCompute evaluates a module's compute block. The script sees the
// deployment settings and the module's literal inputs; its globals become
// additional literal inputs without overriding declared ones.
func (p *Parser) runCompute(ctx context.Context, cfg *DeploymentConfig, spec ModuleSpec, m *engine.Module) error {
	input := map[string]interface{}{
		"deployment": map[string]interface{}{
			"id":             cfg.Deployment.ID,
			"region":         cfg.Deployment.Region,
			"instance_type":  cfg.Deployment.InstanceType,
			"instance_count": cfg.Deployment.InstanceCount,
		},
	}
	for name, v := range m.Inputs {
		if !v.IsReference() {
			input[name] = v.Literal
		}
	}

	output, err := p.starlark.Evaluate(ctx, spec.Compute, input)
	if err != nil {
		return engine.NewConfigurationError(
			fmt.Sprintf("compute block of module %s failed", spec.Name), err).
			WithModule(spec.Name)
	}

	for name, v := range output {
		if _, declared := m.Inputs[name]; declared {
			continue
		}
		m.Inputs[name] = engine.InputValue{Literal: v}
	}
	return nil
}

// convertInput interprets one raw input value. A map containing "from" and
// "output" keys is an upstream reference; anything else is a literal.
func convertInput(module, name string, raw interface{}) (engine.InputValue, error) {
	ref, ok := raw.(map[string]interface{})
	if !ok {
		return engine.InputValue{Literal: raw}, nil
	}

	from, hasFrom := ref["from"].(string)
	output, hasOutput := ref["output"].(string)
	if !hasFrom && !hasOutput {
		// Plain map literal.
		return engine.InputValue{Literal: raw}, nil
	}
	if !hasFrom || !hasOutput || len(ref) != 2 {
		return engine.InputValue{}, engine.NewConfigurationError(
			fmt.Sprintf("input %s of module %s: a reference needs exactly 'from' and 'output'", name, module),
			nil,
		).WithModule(module).WithCode(engine.ErrCodeMissingInput)
	}

	return engine.InputValue{FromModule: from, Output: output}, nil
}

// cueError flattens CUE's error list into a configuration error.
func cueError(path string, err error) error {
	var details string
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		details = cueerrors.Details(errs[0], nil)
	} else {
		details = err.Error()
	}
	return engine.NewConfigurationError(
		fmt.Sprintf("invalid configuration %s: %s", path, details), err)
}
