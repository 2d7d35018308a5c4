// Package sanitize centralizes redaction and payload-filtering helpers
// applied to captured request/response data before it leaves the process.
package sanitize

import (
	"fmt"
	"net/http"
	"strings"
)

// Redacted is the literal substituted for credential-bearing header values.
const Redacted = "[REDACTED]"

// sensitiveHeaders is the lowercased deny-list of credential-bearing header
// names. Matching is case-insensitive on the header name.
var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"x-api-key":           true,
	"api-key":             true,
	"openai-api-key":      true,
	"openai-organization": true,
	"anthropic-api-key":   true,
	"cookie":              true,
	"set-cookie":          true,
}

// SanitizeHeaders normalizes a header collection to a flat string map and
// redacts credential-bearing values. Multi-value headers are joined with
// ", ". A nil input yields an empty map, never an error. The operation is
// idempotent: redacted values are already in final form.
//
// Accepted shapes: http.Header, map[string][]string, map[string]string and
// [][2]string (ordered pairs).
func SanitizeHeaders(headers any) map[string]string {
	out := map[string]string{}
	switch h := headers.(type) {
	case nil:
		return out
	case http.Header:
		for k, vv := range h {
			out[k] = redactValue(k, strings.Join(vv, ", "))
		}
	case map[string][]string:
		for k, vv := range h {
			out[k] = redactValue(k, strings.Join(vv, ", "))
		}
	case map[string]string:
		for k, v := range h {
			out[k] = redactValue(k, v)
		}
	case [][2]string:
		for _, pair := range h {
			k := pair[0]
			if existing, ok := out[k]; ok {
				out[k] = redactValue(k, existing+", "+pair[1])
			} else {
				out[k] = redactValue(k, pair[1])
			}
		}
	case map[string]any:
		for k, v := range h {
			switch vv := v.(type) {
			case []any:
				parts := make([]string, 0, len(vv))
				for _, p := range vv {
					parts = append(parts, fmt.Sprint(p))
				}
				out[k] = redactValue(k, strings.Join(parts, ", "))
			default:
				out[k] = redactValue(k, fmt.Sprint(v))
			}
		}
	}
	return out
}

// redactValue replaces sensitive values while preserving a Bearer prefix so
// the auth scheme remains visible in the captured record.
func redactValue(name, value string) string {
	if !sensitiveHeaders[strings.ToLower(name)] {
		return value
	}
	if strings.EqualFold(name, "authorization") || strings.EqualFold(name, "proxy-authorization") {
		if rest, ok := strings.CutPrefix(value, "Bearer "); ok {
			if rest == Redacted {
				return value
			}
			return "Bearer " + Redacted
		}
	}
	return Redacted
}
