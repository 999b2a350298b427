package domain

import "encoding/json"

// ToolCallArguments models a tool invocation's argument payload as an
// explicit sum: either parsed JSON or a raw buffer still accumulating.
// A partially received buffer is never an error, it is simply RawPending.
type ToolCallArguments struct {
	parsed map[string]any
	raw    string
	valid  bool
}

// ParseToolCallArguments attempts a JSON parse of buf, falling back to the
// raw-pending variant when buf is not (yet) a valid JSON object.
func ParseToolCallArguments(buf string) ToolCallArguments {
	if buf == "" {
		return ToolCallArguments{parsed: map[string]any{}, valid: true}
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(buf), &parsed); err == nil {
		return ToolCallArguments{parsed: parsed, valid: true}
	}
	return ToolCallArguments{raw: buf}
}

// IsParsed reports whether the arguments hold structured JSON.
func (a ToolCallArguments) IsParsed() bool {
	return a.valid
}

// Value returns the best-effort structured form: the parsed object, or
// {"raw": <buffer>} while the buffer is still incomplete.
func (a ToolCallArguments) Value() map[string]any {
	if a.valid {
		return a.parsed
	}
	return map[string]any{"raw": a.raw}
}

// CanonicalJSON renders the best-effort value as a stable JSON string; used
// for change detection between successive emissions of the same call.
func (a ToolCallArguments) CanonicalJSON() string {
	data, err := json.Marshal(a.Value())
	if err != nil {
		return ""
	}
	return string(data)
}

// ToolCall is a fully addressed tool invocation assembled from stream
// fragments.
type ToolCall struct {
	ID        string
	Name      string
	Arguments ToolCallArguments
}
