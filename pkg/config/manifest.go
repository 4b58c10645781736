package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/modelship/modelship/pkg/engine"
)

// ModuleManifest describes a module definition: the inputs it accepts and
// the outputs it publishes. Manifests live as module.yaml next to the
// module's resource declarations.
type ModuleManifest struct {
	// Name is the module definition name.
	Name string `yaml:"name"`

	// Description is a human-readable summary.
	Description string `yaml:"description,omitempty"`

	// Inputs lists accepted inputs.
	Inputs []ManifestInput `yaml:"inputs,omitempty"`

	// Outputs lists published outputs.
	Outputs []ManifestOutput `yaml:"outputs,omitempty"`
}

// ManifestInput describes one accepted input.
type ManifestInput struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Required    bool   `yaml:"required,omitempty"`
}

// ManifestOutput describes one published output.
type ManifestOutput struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// ManifestLoader loads module manifests relative to a base directory.
type ManifestLoader struct {
	// BaseDir is the base directory for resolving module sources.
	BaseDir string
}

// NewManifestLoader creates a manifest loader.
func NewManifestLoader(baseDir string) *ManifestLoader {
	return &ManifestLoader{BaseDir: baseDir}
}

// Load reads the manifest for a module source. A source without a manifest
// returns nil; manifests are optional metadata.
func (l *ManifestLoader) Load(source string) (*ModuleManifest, error) {
	path := filepath.Join(l.BaseDir, source, "module.yaml")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, engine.NewConfigurationError(
			fmt.Sprintf("failed to read module manifest %s", path), err)
	}

	manifest := &ModuleManifest{}
	if err := yaml.Unmarshal(data, manifest); err != nil {
		return nil, engine.NewConfigurationError(
			fmt.Sprintf("module manifest %s is not valid YAML", path), err)
	}
	if manifest.Name == "" {
		return nil, engine.NewConfigurationError(
			fmt.Sprintf("module manifest %s has no name", path), nil)
	}

	return manifest, nil
}

// CheckDeclaration validates a module declaration against its manifest:
// every required input is declared, and every output reference a downstream
// module makes against this module exists. Modules without manifests pass.
func (l *ManifestLoader) CheckDeclaration(modules []engine.Module) error {
	manifests := make(map[string]*ModuleManifest, len(modules))
	for _, m := range modules {
		manifest, err := l.Load(m.Source)
		if err != nil {
			return err
		}
		manifests[m.Name] = manifest
	}

	for _, m := range modules {
		manifest := manifests[m.Name]
		if manifest != nil {
			for _, input := range manifest.Inputs {
				if !input.Required {
					continue
				}
				if _, ok := m.Inputs[input.Name]; !ok {
					return engine.NewConfigurationError(
						fmt.Sprintf("module %s is missing required input %s", m.Name, input.Name),
						nil,
					).WithModule(m.Name).WithCode(engine.ErrCodeMissingInput)
				}
			}
		}

		for name, v := range m.Inputs {
			if !v.IsReference() {
				continue
			}
			upstream := manifests[v.FromModule]
			if upstream == nil {
				continue
			}
			if !manifestHasOutput(upstream, v.Output) {
				return engine.NewConfigurationError(
					fmt.Sprintf("input %s of module %s references output %s that %s does not publish",
						name, m.Name, v.Output, v.FromModule),
					nil,
				).WithModule(m.Name).WithCode(engine.ErrCodeMissingInput)
			}
		}
	}

	return nil
}

func manifestHasOutput(m *ModuleManifest, name string) bool {
	for _, out := range m.Outputs {
		if out.Name == name {
			return true
		}
	}
	return false
}
