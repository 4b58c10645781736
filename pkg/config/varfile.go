package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/modelship/modelship/pkg/engine"
)

// LoadVarFiles reads YAML variable files and merges them left to right;
// later files win on conflicting keys.
func LoadVarFiles(paths []string) (map[string]interface{}, error) {
	vars := make(map[string]interface{})

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, engine.NewConfigurationError(
				fmt.Sprintf("failed to read var file %s", path), err)
		}

		fileVars := make(map[string]interface{})
		if err := yaml.Unmarshal(data, &fileVars); err != nil {
			return nil, engine.NewConfigurationError(
				fmt.Sprintf("var file %s is not valid YAML", path), err)
		}

		for k, v := range fileVars {
			vars[k] = normalizeYAML(v)
		}
	}

	return vars, nil
}

// normalizeYAML rewrites yaml.v3's map[interface{}]interface{} (produced
// for nested maps in some documents) into map[string]interface{}.
func normalizeYAML(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = normalizeYAML(item)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalizeYAML(item)
		}
		return out
	default:
		return v
	}
}
