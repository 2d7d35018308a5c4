package capture

import (
	"fmt"
	"strings"
	"time"

	"github.com/sofatutor/llm-observer/internal/codec"
	"github.com/sofatutor/llm-observer/internal/sanitize"
)

// RequestParts carries the raw request side gathered by an interceptor.
type RequestParts struct {
	Method  string
	URL     string
	Headers any
	Body    []byte
}

// ResponseParts carries the raw response side gathered by an interceptor.
type ResponseParts struct {
	Headers    any
	Body       []byte
	StatusCode *int
	// Streaming is the transport-supplied hint, e.g. a chunked SSE body.
	Streaming bool
}

// Timing brackets the wrapped call.
type Timing struct {
	Start time.Time
	End   time.Time
}

// Build assembles a CapturedCall from raw parts: headers are sanitized,
// bodies decoded best-effort and the streaming flag derived from body shape,
// request stream parameter and Accept header, in that order.
func Build(id string, req RequestParts, resp ResponseParts, t Timing) CapturedCall {
	reqHeaders := sanitize.SanitizeHeaders(req.Headers)
	respHeaders := sanitize.SanitizeHeaders(resp.Headers)
	reqBody := sanitize.SafeValue(codec.Decode(req.Body))

	call := CapturedCall{
		ID:              id,
		Method:          strings.ToLower(req.Method),
		URL:             req.URL,
		RequestHeaders:  reqHeaders,
		RequestBody:     reqBody,
		ResponseHeaders: respHeaders,
		ResponseBody:    sanitize.SafeValue(codec.DecodeBody(resp.Body, respHeaders)),
		StatusCode:      resp.StatusCode,
		StartTime:       t.Start,
		EndTime:         t.End,
		DurationMS:      DurationMillis(t.Start, t.End),
	}
	call.IsStreaming = detectStreaming(resp.Body, reqBody, reqHeaders) || resp.Streaming
	return call
}

// BuildError assembles the record for a wrapped call that failed outright.
// The caller still returns the original error unchanged; observing a call
// must never alter its outcome.
func BuildError(id string, req RequestParts, callErr error, t Timing) CapturedCall {
	call := Build(id, req, ResponseParts{}, t)
	call.ResponseBody = map[string]any{
		"error": map[string]any{
			"message": callErr.Error(),
			"class":   fmt.Sprintf("%T", callErr),
		},
	}
	call.StatusCode = nil
	return call
}

// detectStreaming checks the streaming signals in preference order: response
// body shape, stream parameter in the request body, Accept header. Any
// positive signal wins.
func detectStreaming(respBody []byte, reqBody any, reqHeaders map[string]string) bool {
	if looksLikeEventStream(respBody) {
		return true
	}
	if m, ok := reqBody.(map[string]any); ok {
		if stream, ok := m["stream"].(bool); ok && stream {
			return true
		}
	}
	for k, v := range reqHeaders {
		if strings.EqualFold(k, "Accept") && strings.Contains(strings.ToLower(v), "text/event-stream") {
			return true
		}
	}
	return false
}

func looksLikeEventStream(body []byte) bool {
	trimmed := strings.TrimLeft(string(body), " \t\r\n")
	return strings.HasPrefix(trimmed, "data:") || strings.HasPrefix(trimmed, "event:")
}
