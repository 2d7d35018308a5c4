package sanitize

import (
	"encoding/json"
	"fmt"
)

// SafeValue returns v if it is JSON-serializable, otherwise a structured
// fallback describing the failure. A value that cannot be serialized must
// never abort the whole record.
func SafeValue(v any) any {
	if v == nil {
		return nil
	}
	if _, err := json.Marshal(v); err == nil {
		return v
	}
	return map[string]any{
		"serialization_error": true,
		"class":               fmt.Sprintf("%T", v),
		"raw_response":        fmt.Sprint(v),
	}
}
