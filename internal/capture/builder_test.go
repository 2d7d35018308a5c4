package capture

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func testTiming() Timing {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return Timing{Start: start, End: start.Add(1234567 * time.Microsecond)}
}

func TestBuild_BasicRecord(t *testing.T) {
	call := Build("abc-123",
		RequestParts{
			Method:  "POST",
			URL:     "https://api.openai.com/v1/chat/completions",
			Headers: map[string]string{"Authorization": "Bearer sk-x", "Content-Type": "application/json"},
			Body:    []byte(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`),
		},
		ResponseParts{
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       []byte(`{"id":"chatcmpl-1","choices":[]}`),
			StatusCode: intPtr(200),
		},
		testTiming(),
	)

	assert.Equal(t, "abc-123", call.ID)
	assert.Equal(t, "post", call.Method)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", call.URL)
	assert.Equal(t, "Bearer [REDACTED]", call.RequestHeaders["Authorization"])
	require.NotNil(t, call.StatusCode)
	assert.Equal(t, 200, *call.StatusCode)
	assert.False(t, call.IsStreaming)

	body, ok := call.RequestBody.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o", body["model"])

	// 1234.567ms rounded to hundredths
	assert.Equal(t, 1234.57, call.DurationMS)
}

func TestBuild_DurationRounding(t *testing.T) {
	start := time.Now()
	tests := []struct {
		delta time.Duration
		want  float64
	}{
		{1500 * time.Microsecond, 1.5},
		{1234 * time.Microsecond, 1.23},
		{1235 * time.Microsecond, 1.24},
		{0, 0},
	}
	for _, tt := range tests {
		call := Build("id", RequestParts{Method: "GET"}, ResponseParts{}, Timing{Start: start, End: start.Add(tt.delta)})
		assert.Equal(t, tt.want, call.DurationMS)
	}
}

func TestBuild_StreamingFromResponseBodyShape(t *testing.T) {
	call := Build("id", RequestParts{Method: "POST"}, ResponseParts{
		Headers: map[string]string{"Content-Type": "text/event-stream"},
		Body:    []byte("data: {\"choices\":[]}\n\ndata: [DONE]\n\n"),
	}, testTiming())
	assert.True(t, call.IsStreaming)
}

func TestBuild_StreamingFromRequestParameter(t *testing.T) {
	call := Build("id", RequestParts{
		Method: "POST",
		Body:   []byte(`{"model":"gpt-4o","stream":true}`),
	}, ResponseParts{Body: []byte(`{"ok":true}`)}, testTiming())
	assert.True(t, call.IsStreaming)

	call = Build("id", RequestParts{
		Method: "POST",
		Body:   []byte(`{"model":"gpt-4o","stream":false}`),
	}, ResponseParts{Body: []byte(`{"ok":true}`)}, testTiming())
	assert.False(t, call.IsStreaming)
}

func TestBuild_StreamingFromAcceptHeader(t *testing.T) {
	call := Build("id", RequestParts{
		Method:  "POST",
		Headers: map[string]string{"Accept": "text/event-stream"},
	}, ResponseParts{}, testTiming())
	assert.True(t, call.IsStreaming)
}

func TestBuild_StreamingTransportHint(t *testing.T) {
	call := Build("id", RequestParts{Method: "POST"}, ResponseParts{Streaming: true}, testTiming())
	assert.True(t, call.IsStreaming)
}

func TestBuild_NonJSONBodiesKeptAsStrings(t *testing.T) {
	call := Build("id", RequestParts{
		Method: "POST",
		Body:   []byte("raw text request"),
	}, ResponseParts{Body: []byte("raw text response")}, testTiming())
	assert.Equal(t, "raw text request", call.RequestBody)
	assert.Equal(t, "raw text response", call.ResponseBody)
}

func TestBuildError_ShapeAndNilStatus(t *testing.T) {
	callErr := errors.New("connection refused")
	call := BuildError("id", RequestParts{
		Method: "POST",
		URL:    "https://api.anthropic.com/v1/messages",
		Body:   []byte(`{"model":"claude-sonnet-4"}`),
	}, callErr, testTiming())

	assert.Nil(t, call.StatusCode)
	body, ok := call.ResponseBody.(map[string]any)
	require.True(t, ok)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "connection refused", errObj["message"])
	assert.Equal(t, "*errors.errorString", errObj["class"])
}
