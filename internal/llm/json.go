package llm

import (
	"encoding/json"
	"strings"
)

// Validator is implemented by response types that check their own shape
// beyond what JSON decoding enforces.
type Validator interface {
	Validate() error
}

// StripFences removes a surrounding markdown code fence, if any.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	endIdx := len(lines)
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}
	if endIdx <= 1 {
		return ""
	}
	return strings.TrimSpace(strings.Join(lines[1:endIdx], "\n"))
}

// Decode parses a structured response into v and validates it. Any mismatch
// is reported as a *SchemaError.
func Decode(text string, v any) error {
	cleaned := StripFences(text)
	if cleaned == "" {
		return &SchemaError{Reason: "empty response"}
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return &SchemaError{Reason: "not valid JSON for the requested shape", Err: err}
	}
	if val, ok := v.(Validator); ok {
		if err := val.Validate(); err != nil {
			return &SchemaError{Reason: err.Error(), Err: err}
		}
	}
	return nil
}
