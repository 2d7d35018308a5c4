package interceptor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sofatutor/llm-observer/internal/capture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink collects dispatched records synchronously.
type recordingSink struct {
	mu        sync.Mutex
	calls     []capture.CapturedCall
	responses []any
}

func (s *recordingSink) Dispatch(call capture.CapturedCall, method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *recordingSink) DispatchResponse(raw any, method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, raw)
}

func (s *recordingSink) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *recordingSink) lastCall(t *testing.T) capture.CapturedCall {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.calls)
	return s.calls[len(s.calls)-1]
}

func (s *recordingSink) lastResponse(t *testing.T) any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.responses)
	return s.responses[len(s.responses)-1]
}

func newTestTransport(sink Sink, targets ...string) *Transport {
	if len(targets) == 0 {
		targets = []string{"127.0.0.1"}
	}
	return NewTransport(http.DefaultTransport, NewTargets(targets), sink, nil)
}

func TestRoundTrip_NonMatchingPassThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	sink := &recordingSink{}
	tr := newTestTransport(sink, "api.openai.com")
	client := &http.Client{Transport: tr}

	resp, err := client.Get(srv.URL + "/unrelated")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, `{"ok":true}`, string(body))
	assert.Equal(t, 0, sink.callCount())
}

func TestRoundTrip_BufferedCallObserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqBody, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"model":"gpt-4o","messages":[]}`, string(reqBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","usage":{"prompt_tokens":3,"completion_tokens":5,"total_tokens":8}}`))
	}))
	defer srv.Close()

	sink := &recordingSink{}
	client := &http.Client{Transport: newTestTransport(sink)}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/chat/completions",
		strings.NewReader(`{"model":"gpt-4o","messages":[]}`))
	req.Header.Set("Authorization", "Bearer sk-secret")
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	// the application still reads the full body
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "chatcmpl-1")

	require.Equal(t, 1, sink.callCount())
	call := sink.lastCall(t)
	assert.NotEmpty(t, call.ID)
	assert.Equal(t, "post", call.Method)
	assert.Contains(t, call.URL, "/v1/chat/completions")
	assert.Equal(t, "Bearer [REDACTED]", call.RequestHeaders["Authorization"])
	require.NotNil(t, call.StatusCode)
	assert.Equal(t, 200, *call.StatusCode)
	assert.False(t, call.IsStreaming)

	reqBody := call.RequestBody.(map[string]any)
	assert.Equal(t, "gpt-4o", reqBody["model"])
	respBody := call.ResponseBody.(map[string]any)
	assert.Equal(t, "chatcmpl-1", respBody["id"])

	require.NotNil(t, call.Usage)
	assert.Equal(t, 8, call.Usage.TotalTokens)
	assert.False(t, call.Usage.Estimated)
	assert.GreaterOrEqual(t, call.DurationMS, 0.0)
}

func TestRoundTrip_ErrorReturnedUnchanged(t *testing.T) {
	sink := &recordingSink{}
	tr := NewTransport(http.DefaultTransport, NewTargets([]string{"127.0.0.1"}), sink, nil)
	client := &http.Client{Transport: tr}

	// closed port: connection refused
	_, err := client.Post("http://127.0.0.1:1/v1/chat/completions", "application/json",
		strings.NewReader(`{"model":"gpt-4o"}`))
	require.Error(t, err)

	require.Equal(t, 1, sink.callCount())
	call := sink.lastCall(t)
	assert.Nil(t, call.StatusCode)
	errBody := call.ResponseBody.(map[string]any)["error"].(map[string]any)
	assert.NotEmpty(t, errBody["message"])
	assert.NotEmpty(t, errBody["class"])
}

func TestRoundTrip_SuppressionAcrossLayers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	outerSink := &recordingSink{}
	innerSink := &recordingSink{}
	inner := newTestTransport(innerSink)
	outer := NewTransport(inner, NewTargets([]string{"127.0.0.1"}), outerSink, nil)

	client := &http.Client{Transport: outer}
	resp, err := client.Get(srv.URL + "/v1/models")
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, 1, outerSink.callCount())
	assert.Equal(t, 0, innerSink.callCount())
}

func TestRoundTrip_StreamingObservedAtDrain(t *testing.T) {
	chunks := []string{
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n",
		"data: [DONE]\n\n",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		for _, c := range chunks {
			_, _ = w.Write([]byte(c))
			fl.Flush()
		}
	}))
	defer srv.Close()

	sink := &recordingSink{}
	client := &http.Client{Transport: newTestTransport(sink)}

	resp, err := client.Post(srv.URL+"/v1/chat/completions", "application/json",
		strings.NewReader(`{"model":"gpt-4o","stream":true}`))
	require.NoError(t, err)

	// no record until the stream is drained
	assert.Equal(t, 0, sink.callCount())

	full, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, strings.Join(chunks, ""), string(full))

	require.Equal(t, 1, sink.callCount())
	call := sink.lastCall(t)
	assert.True(t, call.IsStreaming)
	assert.Equal(t, strings.Join(chunks, ""), call.ResponseBody)
	require.NotNil(t, call.StatusCode)
	assert.Equal(t, 200, *call.StatusCode)
}

func TestRoundTrip_StreamingCaptureCapped(t *testing.T) {
	payload := strings.Repeat("x", 256)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprintf(w, "data: %s\n\n", payload)
	}))
	defer srv.Close()

	sink := &recordingSink{}
	tr := newTestTransport(sink)
	tr.maxBytes = 16
	client := &http.Client{Transport: tr}

	resp, err := client.Get(srv.URL + "/v1/chat/completions")
	require.NoError(t, err)

	full, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	// the application sees everything even though the capture is capped
	assert.Len(t, full, len(payload)+8)

	call := sink.lastCall(t)
	captured, ok := call.ResponseBody.(string)
	require.True(t, ok)
	assert.Len(t, captured, 16)
}

func TestRoundTrip_BufferedCaptureCapped(t *testing.T) {
	payload := `{"content":"` + strings.Repeat("x", 256) + `"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	sink := &recordingSink{}
	tr := newTestTransport(sink)
	tr.maxBytes = 16
	client := &http.Client{Transport: tr}

	resp, err := client.Get(srv.URL + "/v1/chat/completions")
	require.NoError(t, err)

	full, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	// the application sees everything even though the capture is capped
	assert.Equal(t, payload, string(full))

	call := sink.lastCall(t)
	captured, ok := call.ResponseBody.(string)
	require.True(t, ok)
	assert.Equal(t, payload[:16], captured)
}

func TestRoundTrip_ExternalCompletionParksRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"delta\":\"hi\"}\n\n"))
	}))
	defer srv.Close()

	sink := &recordingSink{}
	tr := newTestTransport(sink)
	client := &http.Client{Transport: tr}

	ctx, id := WithExternalCompletion(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, srv.URL+"/v1/chat/completions",
		strings.NewReader(`{"stream":true}`))

	resp, err := client.Do(req)
	require.NoError(t, err)
	_, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	// parked, not dispatched
	assert.Equal(t, 0, sink.callCount())
	assert.Equal(t, 1, tr.PendingCount())

	final := map[string]any{"content": "hi", "finish_reason": "stop"}
	assert.True(t, tr.FinishStreaming(id, final))
	assert.Equal(t, 0, tr.PendingCount())

	sent := sink.lastResponse(t).(capture.CapturedCall)
	assert.Equal(t, id, sent.ID)
	assert.Equal(t, final, sent.ResponseBody)
	// EndTime moves to completion time and duration_ms stays derived from it
	assert.False(t, sent.EndTime.Before(sent.StartTime))
	assert.Equal(t, capture.DurationMillis(sent.StartTime, sent.EndTime), sent.DurationMS)

	// completing twice or with an unknown id is a no-op
	assert.False(t, tr.FinishStreaming(id, nil))
	assert.False(t, tr.FinishStreaming("unknown", nil))
}

func TestRoundTrip_RequestBodyStillReadableByServer(t *testing.T) {
	var got []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	sink := &recordingSink{}
	client := &http.Client{Transport: newTestTransport(sink)}

	payload := []byte(`{"model":"gpt-4o","input":"hello"}`)
	resp, err := client.Post(srv.URL+"/v1/responses", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, payload, got)
}

func TestTargets_Match(t *testing.T) {
	targets := NewTargets([]string{"api.openai.com", "api.anthropic.com"})
	assert.True(t, targets.Match("https://api.openai.com/v1/chat/completions"))
	assert.True(t, targets.Match("https://api.anthropic.com/v1/messages"))
	assert.False(t, targets.Match("https://example.com/v1/chat"))
	assert.False(t, NewTargets(nil).Match("https://api.openai.com/v1"))
}

func TestWrapClient_Idempotent(t *testing.T) {
	sink := &recordingSink{}
	base := newTestTransport(sink)

	c := &http.Client{Timeout: 5 * time.Second}
	wrapped := WrapClient(c, base)
	first := wrapped.Transport

	again := WrapClient(wrapped, base)
	assert.Same(t, wrapped, again)
	assert.Same(t, first, again.Transport)
	assert.True(t, IsWrapped(again.Transport))
}

func TestWrapClient_NilClient(t *testing.T) {
	sink := &recordingSink{}
	base := newTestTransport(sink)
	c := WrapClient(nil, base)
	require.NotNil(t, c)
	assert.True(t, IsWrapped(c.Transport))
}

func TestChain_SharesPendingStore(t *testing.T) {
	sink := &recordingSink{}
	base := newTestTransport(sink)
	chained := base.Chain(http.DefaultTransport)

	base.pending.Park("shared-id", capture.CapturedCall{ID: "shared-id"})
	assert.True(t, chained.FinishStreaming("shared-id", nil))
}

func TestRoundTrip_GetRequestFullRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"msg":"hi"}`))
	}))
	defer srv.Close()

	sink := &recordingSink{}
	client := &http.Client{Transport: newTestTransport(sink)}

	resp, err := client.Get(srv.URL + "/v1/chat")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, `{"msg":"hi"}`, string(body))

	require.Equal(t, 1, sink.callCount())
	call := sink.lastCall(t)
	assert.True(t, strings.HasSuffix(call.URL, "/v1/chat"))
	assert.Equal(t, "get", call.Method)
	assert.Nil(t, call.RequestBody)
	assert.Equal(t, map[string]any{"msg": "hi"}, call.ResponseBody)
	require.NotNil(t, call.StatusCode)
	assert.Equal(t, 200, *call.StatusCode)
	assert.False(t, call.IsStreaming)
	assert.False(t, call.EndTime.Before(call.StartTime))
}
