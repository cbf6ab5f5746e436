package harness

import (
	"encoding/json"
	"regexp"
)

// maxTracePayloadBytes bounds the input/output/system_context payloads
// attached to llm.call.* events (spec §4.C.3 "bounded input/output/
// system_context (truncation markers when clipped)").
const maxTracePayloadBytes = 4096

const truncationMarker = "...[truncated]"

var sensitiveTraceKeys = regexp.MustCompile(`(?i)"(api_key|authorization|token|password)"\s*:\s*"[^"]*"`)

// boundPayload clips raw to maxTracePayloadBytes, appending a
// truncation marker, and redacts sensitive keys before either
// operation so a clip point never splits a redacted value.
func boundPayload(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	redacted := sensitiveTraceKeys.ReplaceAll(raw, []byte(`"$1":"[REDACTED]"`))
	if len(redacted) <= maxTracePayloadBytes {
		return redacted
	}
	clipped := make([]byte, maxTracePayloadBytes)
	copy(clipped, redacted[:maxTracePayloadBytes])
	return json.RawMessage(append(clipped, []byte(truncationMarker)...))
}

func boundString(s string) string {
	if len(s) <= maxTracePayloadBytes {
		return s
	}
	return s[:maxTracePayloadBytes] + truncationMarker
}
