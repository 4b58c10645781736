package config

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// StarlarkEvaluator executes the compute blocks of module declarations. The
// script's exported globals become additional module inputs.
type StarlarkEvaluator struct {
	timeout time.Duration
}

// NewStarlarkEvaluator creates an evaluator with the given per-script
// timeout.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &StarlarkEvaluator{timeout: timeout}
}

// Evaluate runs a script with the given inputs predeclared and returns the
// exported globals. Names starting with underscore stay private to the
// script.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, script string, input map[string]interface{}) (map[string]interface{}, error) {
	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	type outcome struct {
		output map[string]interface{}
		err    error
	}
	ch := make(chan outcome, 1)

	go func() {
		output, err := se.evaluateSync(script, input)
		ch <- outcome{output: output, err: err}
	}()

	select {
	case <-evalCtx.Done():
		return nil, fmt.Errorf("starlark execution timed out after %v", se.timeout)
	case o := <-ch:
		return o.output, o.err
	}
}

// evaluateSync performs the actual evaluation.
func (se *StarlarkEvaluator) evaluateSync(script string, input map[string]interface{}) (map[string]interface{}, error) {
	thread := &starlark.Thread{
		Name: "modelship",
		Print: func(_ *starlark.Thread, msg string) {
			// Scripts compute values; print output is dropped.
		},
	}

	predeclared := starlark.StringDict{
		"struct": starlarkstruct.Default,
	}
	for key, val := range input {
		starlarkVal, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input %s: %w", key, err)
		}
		predeclared[key] = starlarkVal
	}

	globals, err := starlark.ExecFile(thread, "compute.star", script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	output := make(map[string]interface{})
	for name, val := range globals {
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		goVal, err := fromStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert output %s: %w", name, err)
		}
		output[name] = goVal
	}
	return output, nil
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		items := make([]starlark.Value, len(val))
		for i, item := range val {
			conv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			items[i] = conv
		}
		return starlark.NewList(items), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			conv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), conv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

// fromStarlarkValue converts a Starlark value back to a Go value.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		if i, ok := val.Int64(); ok {
			return i, nil
		}
		return nil, fmt.Errorf("integer out of range: %s", val)
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		out := make([]interface{}, 0, val.Len())
		iter := val.Iterate()
		defer iter.Done()
		var item starlark.Value
		for iter.Next(&item) {
			conv, err := fromStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, conv)
		}
		return out, nil
	case *starlark.Dict:
		out := make(map[string]interface{}, val.Len())
		for _, k := range val.Keys() {
			key, ok := k.(starlark.String)
			if !ok {
				return nil, fmt.Errorf("non-string dict key: %s", k)
			}
			item, _, err := val.Get(k)
			if err != nil {
				return nil, err
			}
			conv, err := fromStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			out[string(key)] = conv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type %s", v.Type())
	}
}
