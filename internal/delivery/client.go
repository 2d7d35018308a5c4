package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sofatutor/llm-observer/internal/capture"
	"github.com/sofatutor/llm-observer/internal/codec"
	"github.com/sofatutor/llm-observer/internal/sanitize"
	"go.uber.org/zap"
)

// Options configures a collector client.
type Options struct {
	BaseURL string
	APIKey  string
	// Debug short-circuits delivery: the sanitized payload is pretty-printed
	// and no network call is made.
	Debug bool
	// Source selects the binary field set stripped from payloads.
	Source string
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client performs the POSTs to the analytics collector.
type Client struct {
	baseURL string
	apiKey  string
	debug   bool
	source  string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient creates a collector client.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		debug:   opts.Debug,
		source:  opts.Source,
		client:  httpClient,
		logger:  logger,
	}
}

// SendRequestLog posts a captured call to the collector and returns the
// collector-assigned id. Errors are returned for the batching dispatcher's
// retry logic; fire-and-forget callers should use Dispatch instead.
func (c *Client) SendRequestLog(ctx context.Context, call capture.CapturedCall, method string) (string, error) {
	env := requestLogEnvelope{LLMRequestLog: requestLogBody{
		RawRequest: call,
		Collector:  CollectorTag(method),
	}}
	return c.post(ctx, pathRequestLogs, env)
}

// SendResponse posts an out-of-band streaming completion.
func (c *Client) SendResponse(ctx context.Context, rawResponse any, method string) (string, error) {
	env := responseEnvelope{LLMResponse: responseBody{
		RawResponse: rawResponse,
		Collector:   CollectorTag(method),
	}}
	return c.post(ctx, pathResponses, env)
}

// SendFeedback posts a feedback record for an earlier request log.
func (c *Client) SendFeedback(ctx context.Context, fb Feedback) (string, error) {
	env := feedbackEnvelope{LLMRequestLogFeedback: feedbackBody{
		Feedback:  fb,
		Collector: CollectorTag(MethodManual),
	}}
	return c.post(ctx, pathFeedbacks, env)
}

// Dispatch sends a captured call on a detached goroutine. It never blocks
// and no failure is visible to the caller beyond a log line.
func (c *Client) Dispatch(call capture.CapturedCall, method string) {
	go func() {
		if _, err := c.SendRequestLog(context.Background(), call, method); err != nil {
			c.logger.Warn("request log delivery failed",
				zap.String("call_id", call.ID),
				zap.Error(err))
		}
	}()
}

// DispatchResponse sends an out-of-band completion on a detached goroutine.
func (c *Client) DispatchResponse(rawResponse any, method string) {
	go func() {
		if _, err := c.SendResponse(context.Background(), rawResponse, method); err != nil {
			c.logger.Warn("response delivery failed", zap.Error(err))
		}
	}()
}

// post serializes the envelope, applies the final binary-strip pass and
// issues the collector call. In debug mode it prints the payload instead.
func (c *Client) post(ctx context.Context, path string, envelope any) (string, error) {
	payload := stripEnvelope(envelope, c.source)

	if c.debug {
		pretty, err := codec.EncodeIndent(payload)
		if err != nil {
			return "", &Error{Endpoint: path, Err: err}
		}
		fmt.Printf("[llm-observer debug] POST %s\n%s\n", path, pretty)
		return "", nil
	}

	body, err := codec.Encode(payload)
	if err != nil {
		return "", &Error{Endpoint: path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Endpoint: path, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &Error{Endpoint: path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", &PermanentError{Msg: fmt.Sprintf("collector rejected payload with status %d", resp.StatusCode)}
		}
		return "", &Error{Endpoint: path, StatusCode: resp.StatusCode}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Endpoint: path, Err: err}
	}
	var parsed struct {
		ID any `json:"id"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil || parsed.ID == nil {
		return "", nil
	}
	return fmt.Sprint(parsed.ID), nil
}

// stripEnvelope applies the binary-field safety net to the full payload just
// before serialization, independent of any stripping done upstream.
func stripEnvelope(envelope any, source string) any {
	data, err := json.Marshal(envelope)
	if err != nil {
		return sanitize.SafeValue(envelope)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return envelope
	}
	return sanitize.StripBinaryFieldsForSource(generic, source)
}
