package interceptor

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sofatutor/llm-observer/internal/capture"
	"github.com/sofatutor/llm-observer/internal/correlation"
	"github.com/sofatutor/llm-observer/internal/delivery"
	"go.uber.org/zap"
)

// DefaultMaxCaptureBytes bounds how much of a streamed body is buffered for
// the record. The application still receives the full stream.
const DefaultMaxCaptureBytes int64 = 4 << 20

type ctxKey int

const externalCompletionKey ctxKey = iota

// Sink receives finished records on a non-blocking path. *delivery.Client
// satisfies it for direct fire-and-forget delivery; the event bus publisher
// satisfies it for the buffered pipeline.
type Sink interface {
	Dispatch(call capture.CapturedCall, method string)
	DispatchResponse(rawResponse any, method string)
}

// Transport is an http.RoundTripper middleware observing calls whose URL
// matches an intercept target. Non-matching calls pass through with no
// added work.
type Transport struct {
	inner    http.RoundTripper
	targets  *Targets
	client   Sink
	pending  *correlation.PendingStore[capture.CapturedCall]
	logger   *zap.Logger
	maxBytes int64
}

// NewTransport wraps inner (http.DefaultTransport when nil) with call
// observation. The delivery client receives one record per observed call on
// a detached goroutine.
func NewTransport(inner http.RoundTripper, targets *Targets, client Sink, logger *zap.Logger) *Transport {
	if inner == nil {
		inner = http.DefaultTransport
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{
		inner:    inner,
		targets:  targets,
		client:   client,
		pending:  correlation.NewPendingStore[capture.CapturedCall](),
		logger:   logger,
		maxBytes: DefaultMaxCaptureBytes,
	}
}

// PendingCount reports how many streaming records are parked awaiting an
// out-of-band completion signal.
func (t *Transport) PendingCount() int { return t.pending.Len() }

// RoundTrip implements http.RoundTripper. The wrapped call's result, error
// and timing are returned unchanged; record building and delivery happen off
// the caller's path.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.targets.Match(req.URL.String()) {
		return t.inner.RoundTrip(req)
	}

	ctx := req.Context()
	ctx, acquired := correlation.Claim(ctx)
	if !acquired {
		// another interceptor layer already owns this call
		return t.inner.RoundTrip(req)
	}

	id, external := externalCompletionID(ctx)
	if id == "" {
		id = uuid.New().String()
	}
	start := time.Now()

	reqParts := capture.RequestParts{
		Method:  req.Method,
		URL:     req.URL.String(),
		Headers: req.Header,
		Body:    snapshotRequestBody(req),
	}

	ctx, buf := correlation.WithBuffer(ctx)
	resp, err := t.inner.RoundTrip(req.WithContext(ctx))
	if err != nil {
		call := capture.BuildError(id, reqParts, err, capture.Timing{Start: start, End: time.Now()})
		t.client.Dispatch(call, delivery.MethodAutoMonitor)
		return nil, err
	}

	status := resp.StatusCode
	if isEventStream(resp) {
		t.captureStreaming(id, reqParts, resp, buf, start, external)
		return resp, nil
	}

	body := bufferResponseBody(resp, t.maxBytes)
	captured := buf.Take()
	if captured == nil {
		captured = body
	}
	call := capture.Build(id, reqParts, capture.ResponseParts{
		Headers:    resp.Header,
		Body:       captured,
		StatusCode: &status,
	}, capture.Timing{Start: start, End: time.Now()})
	capture.EstimateUsage(&call)
	t.client.Dispatch(call, delivery.MethodAutoMonitor)
	return resp, nil
}

// captureStreaming wraps the response body so the record is finished when
// the application drains or closes the stream. When completion is signaled
// externally the partial record is parked instead of dispatched.
func (t *Transport) captureStreaming(id string, reqParts capture.RequestParts, resp *http.Response, buf *correlation.Buffer, start time.Time, external bool) {
	status := resp.StatusCode
	header := cloneHeader(resp.Header)
	resp.Body = newStreamCapture(resp.Body, buf, t.maxBytes, func(chunks []byte) {
		call := capture.Build(id, reqParts, capture.ResponseParts{
			Headers:    header,
			Body:       chunks,
			StatusCode: &status,
			Streaming:  true,
		}, capture.Timing{Start: start, End: time.Now()})
		capture.EstimateUsage(&call)
		if external {
			t.pending.Park(id, call)
			return
		}
		t.client.Dispatch(call, delivery.MethodAutoMonitor)
	})
}

// FinishStreaming completes a parked streaming record with the final
// accumulated response supplied by the SDK and delivers it. Unknown ids are
// ignored; a record whose completion signal never arrives is never sent.
func (t *Transport) FinishStreaming(id string, finalResponse any) bool {
	call, ok := t.pending.Complete(id)
	if !ok {
		return false
	}
	if finalResponse != nil {
		call.ResponseBody = finalResponse
	}
	call.EndTime = time.Now()
	call.DurationMS = capture.DurationMillis(call.StartTime, call.EndTime)
	t.client.DispatchResponse(call, delivery.MethodAutoMonitor)
	return true
}

// WithExternalCompletion marks the call on ctx as one whose final response
// is accumulated by an SDK and signaled later via FinishStreaming. The
// returned id is the correlation key for that signal.
func WithExternalCompletion(ctx context.Context) (context.Context, string) {
	id := uuid.New().String()
	return context.WithValue(ctx, externalCompletionKey, id), id
}

func externalCompletionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(externalCompletionKey).(string)
	return id, ok
}

// snapshotRequestBody captures the request body without consuming it.
func snapshotRequestBody(req *http.Request) []byte {
	if req.Body == nil {
		return nil
	}
	if req.GetBody != nil {
		rc, err := req.GetBody()
		if err == nil {
			data, err := io.ReadAll(rc)
			_ = rc.Close()
			if err == nil {
				return data
			}
		}
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		req.Body = io.NopCloser(bytes.NewReader(nil))
		return nil
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	return data
}

// bufferResponseBody reads a buffered response fully and restores it for the
// application. The captured copy is truncated to maxBytes; the restored body
// is always complete.
func bufferResponseBody(resp *http.Response, maxBytes int64) []byte {
	if resp.Body == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		resp.Body = io.NopCloser(bytes.NewReader(nil))
		return nil
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		capped := make([]byte, maxBytes)
		copy(capped, data)
		return capped
	}
	return data
}

func isEventStream(resp *http.Response) bool {
	return strings.HasPrefix(strings.ToLower(resp.Header.Get("Content-Type")), "text/event-stream")
}

func cloneHeader(h http.Header) http.Header {
	cloned := make(http.Header, len(h))
	for k, v := range h {
		vv := make([]string, len(v))
		copy(vv, v)
		cloned[k] = vv
	}
	return cloned
}
