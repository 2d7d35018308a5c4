// Package capture assembles the canonical request/response record for an
// observed LLM API call.
package capture

import (
	"math"
	"time"
)

// CapturedCall is the normalized record for one observed outbound call. It
// is built once, handed to delivery exactly once and never mutated
// afterward.
type CapturedCall struct {
	ID              string            `json:"id"`
	Method          string            `json:"method"`
	URL             string            `json:"url"`
	RequestHeaders  map[string]string `json:"request_headers"`
	RequestBody     any               `json:"request_body,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	ResponseBody    any               `json:"response_body,omitempty"`
	StatusCode      *int              `json:"status_code,omitempty"`
	StartTime       time.Time         `json:"start_time"`
	EndTime         time.Time         `json:"end_time"`
	DurationMS      float64           `json:"duration_ms"`
	IsStreaming     bool              `json:"is_streaming"`
	Usage           *TokenUsage       `json:"usage,omitempty"`
}

// TokenUsage holds prompt/completion token counts, either reported by the
// provider or estimated locally.
type TokenUsage struct {
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	TotalTokens      int  `json:"total_tokens"`
	Estimated        bool `json:"estimated,omitempty"`
}

// DurationMillis converts a span to milliseconds rounded to hundredths.
// duration_ms is always derived from the record's start/end pair; anything
// that moves EndTime must recompute it through here.
func DurationMillis(start, end time.Time) float64 {
	ms := end.Sub(start).Seconds() * 1000
	return math.Round(ms*100) / 100
}
