package toolschema

import (
	"encoding/json"
	"testing"
)

const bashSchema = `{
  "type": "object",
  "properties": {
    "command": {"type": "string"}
  },
  "required": ["command"],
  "additionalProperties": false
}`

func TestValidateAcceptsConformingArgs(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("bash", []byte(bashSchema)); err != nil {
		t.Fatal(err)
	}
	if err := r.Validate("bash", json.RawMessage(`{"command":"ls"}`)); err != nil {
		t.Fatalf("expected valid args to pass, got %v", err)
	}
}

func TestValidateRejectsMissingRequiredField(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("bash", []byte(bashSchema)); err != nil {
		t.Fatal(err)
	}
	if err := r.Validate("bash", json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected missing required field to fail validation")
	}
}

func TestValidateUnregisteredToolPasses(t *testing.T) {
	r := NewRegistry()
	if err := r.Validate("unregistered_tool", json.RawMessage(`{"anything":true}`)); err != nil {
		t.Fatalf("unregistered tool should not be validated, got %v", err)
	}
}
