package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// ConfigHash computes a stable hash over a module's resolved configuration.
// Two declarations hash identically iff their source and input set are
// identical, so the hash doubles as the idempotency key in state.
func ConfigHash(source string, inputs map[string]interface{}) (string, error) {
	canonical, err := canonicalJSON(map[string]interface{}{
		"source": source,
		"inputs": inputs,
	})
	if err != nil {
		return "", NewConfigurationError("failed to canonicalize module configuration", err).
			WithCode(ErrCodeInternal)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON marshals a value with map keys sorted at every depth, so
// equal values always produce equal bytes.
func canonicalJSON(v interface{}) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(normalized)
}

// normalize rewrites maps into key-sorted ordered pair lists. JSON object
// key order is not guaranteed stable across encoders, so maps are flattened
// into arrays before marshalling.
func normalize(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pairs := make([]interface{}, 0, len(keys)*2)
		for _, k := range keys {
			child, err := normalize(val[k])
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, k, child)
		}
		return pairs, nil

	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			child, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = child
		}
		return out, nil

	case nil, bool, string, float64, int, int64, json.Number:
		return val, nil

	default:
		// Round-trip anything else through JSON to reach base types.
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("unsupported input value: %w", err)
		}
		var decoded interface{}
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, err
		}
		return normalize(decoded)
	}
}

// isSatisfied reports whether a module's current record already matches its
// declared configuration. Only a successfully provisioned module with the
// same hash counts as satisfied; failed and unprovisioned modules always
// re-plan.
func isSatisfied(record *ModuleRecord, configHash string) bool {
	return record.Status == ModuleStatusProvisioned && record.ConfigHash == configHash
}
