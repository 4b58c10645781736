package engine

import (
	"fmt"
)

// resolveInputs materializes a module's declared inputs: literals pass
// through, references are substituted with the upstream module's published
// outputs from state. Resolution order guarantees the upstream was
// provisioned earlier in the same run or a previous one.
func resolveInputs(m *Module, state *DeploymentState) (map[string]interface{}, error) {
	inputs := make(map[string]interface{}, len(m.Inputs))

	for name, v := range m.Inputs {
		if !v.IsReference() {
			inputs[name] = v.Literal
			continue
		}

		record := state.Record(v.FromModule)
		if record.Status != ModuleStatusProvisioned {
			return nil, NewProvisioningError(
				fmt.Sprintf("module %s needs output %s.%s but %s is %s",
					m.Name, v.FromModule, v.Output, v.FromModule, record.Status),
				nil,
			).WithModule(m.Name).WithCode(ErrCodeMissingInput)
		}

		value, ok := record.Outputs[v.Output]
		if !ok {
			return nil, NewProvisioningError(
				fmt.Sprintf("module %s references unknown output %s.%s",
					m.Name, v.FromModule, v.Output),
				nil,
			).WithModule(m.Name).WithCode(ErrCodeMissingInput)
		}
		inputs[name] = value
	}

	return inputs, nil
}
