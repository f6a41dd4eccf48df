package translate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// keyedSchema builds a JSON schema requiring exactly the request keys, each
// a string value. Validating the raw response against it catches shape
// drift (missing keys, extra keys, nested objects) before extraction.
func keyedSchema(keys []string) (*jsonschema.Schema, error) {
	props := make(map[string]any, len(keys))
	for _, k := range keys {
		props[k] = map[string]any{"type": "string"}
	}
	doc := map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             keys,
		"additionalProperties": false,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to build keyed schema: %w", err)
	}
	return jsonschema.CompileString("keyed.json", string(raw))
}

// parseKeyed validates and extracts a keyed translation response. The
// response keys must exactly equal the request keys.
func parseKeyed(raw string, keys []string) (map[string]string, error) {
	raw = stripFences(raw)

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("response is not JSON: %v", err)}
	}

	sch, err := keyedSchema(keys)
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(v); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("key mismatch: %v", err)}
	}

	obj := v.(map[string]any)
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = obj[k].(string)
	}
	return out, nil
}

// parseLines validates and splits a line-batch response. The line count
// must exactly equal the request count; escaped newlines are restored.
func parseLines(raw string, want int) ([]string, error) {
	raw = stripFences(raw)
	raw = strings.TrimSuffix(raw, "\n")
	lines := strings.Split(raw, "\n")
	if len(lines) != want {
		return nil, &ValidationError{Reason: "line count mismatch", Want: want, Got: len(lines)}
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strings.ReplaceAll(l, `\n`, "\n")
	}
	return out, nil
}

// stripFences removes a wrapping markdown code fence, which chat backends
// add around structured output despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
