package harness

import "encoding/json"

// ToolCallValidator validates a tool call's arguments against a
// registered schema before the harness invokes the adapter (spec
// §9.1). internal/toolschema.Registry satisfies this.
type ToolCallValidator interface {
	Validate(toolName string, args json.RawMessage) error
}
