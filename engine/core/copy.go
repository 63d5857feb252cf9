package core

import (
	"encoding/json"
	"fmt"

	"dario.cat/mergo"
)

// DeepCopyMap returns a deep copy of m via a JSON round-trip. Step executors
// snapshot the execution context with this before template resolution so an
// in-flight step never observes later context writes.
func DeepCopyMap(m map[string]any) (map[string]any, error) {
	if m == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("copying map: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("copying map: %w", err)
	}
	return out, nil
}

// MergeOutput merges a step output into the execution context under key.
// An existing entry for the same key is overridden, which is what a retried
// step re-running the same index needs.
func MergeOutput(ctx map[string]any, key string, output Output) error {
	if output == nil {
		return nil
	}
	existing, ok := ctx[key].(map[string]any)
	if !ok {
		ctx[key] = output.AsMap()
		return nil
	}
	if err := mergo.Merge(&existing, output.AsMap(), mergo.WithOverride); err != nil {
		return fmt.Errorf("merging output for %q: %w", key, err)
	}
	ctx[key] = existing
	return nil
}
