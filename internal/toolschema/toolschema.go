// Package toolschema validates typed tool-call argument unions at the
// wire boundary (spec §9.1), using JSON Schema so each tool's argument
// shape is declared data rather than hand-written Go validation code.
package toolschema

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Registry holds one compiled JSON Schema per tool name.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*jsonschema.Schema)}
}

// Register compiles schemaJSON and associates it with toolName.
// schemaJSON must be a valid JSON Schema document.
func (r *Registry) Register(toolName string, schemaJSON []byte) error {
	compiler := jsonschema.NewCompiler()
	resourceName := toolName + ".json"
	if err := compiler.AddResource(resourceName, byteReader(schemaJSON)); err != nil {
		return fmt.Errorf("add schema resource for %s: %w", toolName, err)
	}
	schema, err := compiler.Compile(resourceName)
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", toolName, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[toolName] = schema
	return nil
}

// Validate checks args against toolName's registered schema. A tool
// with no registered schema is treated as unvalidated (returns nil):
// schema registration is opt-in per tool, not every tool needs a
// strict argument contract.
func (r *Registry) Validate(toolName string, args json.RawMessage) error {
	r.mu.RLock()
	schema, ok := r.schemas[toolName]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return fmt.Errorf("tool %s: args not valid JSON: %w", toolName, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("tool %s: argument validation failed: %w", toolName, err)
	}
	return nil
}
