package codec

import (
	"encoding/json"

	"github.com/sofatutor/llm-observer/internal/sanitize"
)

// Encode JSON-serializes v for delivery. Invalid UTF-8 inside string leaves
// is coerced to the replacement rune by encoding/json rather than failing
// the whole send; values that cannot be marshaled at all are replaced with
// the sanitize fallback shape.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err == nil {
		return data, nil
	}
	return json.Marshal(sanitize.SafeValue(v))
}

// EncodeIndent is Encode with indentation, used for debug-mode dry runs.
func EncodeIndent(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err == nil {
		return data, nil
	}
	return json.MarshalIndent(sanitize.SafeValue(v), "", "  ")
}
