// Package delivery wraps the outbound calls to the analytics collector. All
// delivery is best-effort: failures are logged and swallowed at this
// boundary, never surfaced to application code.
package delivery

import (
	"github.com/sofatutor/llm-observer/internal/capture"
)

// SDK identity baked into every envelope's collector tag.
const (
	SDKName    = "llm-observer-go"
	SDKVersion = "0.3.0"
)

// Capture methods distinguishing how a record was produced.
const (
	MethodAutoMonitor = "auto-monitor"
	MethodManual      = "manual"
)

// Collector endpoints under the configured base URL.
const (
	pathRequestLogs = "/v2/llm_request_logs"
	pathFeedbacks   = "/v2/llm_request_log_feedbacks"
	pathResponses   = "/v2/llm_responses"
)

// CollectorTag identifies the instrumenting SDK and capture method.
func CollectorTag(method string) string {
	return SDKName + "/" + SDKVersion + " (" + method + ")"
}

// requestLogEnvelope is the wire shape for POST /v2/llm_request_logs.
type requestLogEnvelope struct {
	LLMRequestLog requestLogBody `json:"llm_request_log"`
}

type requestLogBody struct {
	RawRequest capture.CapturedCall `json:"raw_request"`
	Collector  string               `json:"collector"`
}

// responseEnvelope is the wire shape for POST /v2/llm_responses, used for
// out-of-band streaming completions.
type responseEnvelope struct {
	LLMResponse responseBody `json:"llm_response"`
}

type responseBody struct {
	RawResponse any    `json:"raw_response"`
	Collector   string `json:"collector"`
}

// Feedback is a quality signal attached to an earlier request log. All
// fields are optional; correlation can be exact (log id, provider id) or
// fuzzy (original/revised output text).
type Feedback struct {
	LLMRequestLogID     string `json:"llm_request_log_id,omitempty"`
	LLMProviderUniqueID string `json:"llm_provider_unique_id,omitempty"`
	OriginalOutput      string `json:"original_output,omitempty"`
	RevisedOutput       string `json:"revised_output,omitempty"`
	ClientUniqueID      string `json:"client_unique_id,omitempty"`
	CreatorUniqueID     string `json:"creator_unique_id,omitempty"`
	Explanation         string `json:"explanation,omitempty"`
	Like                *bool  `json:"like,omitempty"`
}

// feedbackEnvelope is the wire shape for POST /v2/llm_request_log_feedbacks.
type feedbackEnvelope struct {
	LLMRequestLogFeedback feedbackBody `json:"llm_request_log_feedback"`
}

type feedbackBody struct {
	Feedback
	Collector string `json:"collector"`
}
