package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sofatutor/llm-observer/internal/capture"
	"go.uber.org/zap"
)

// BatchItem is one request/response pair extracted from a provider's batch
// result listing, joined on the shared custom id.
type BatchItem struct {
	CustomID   string
	Method     string
	URL        string
	Request    any
	Response   any
	StatusCode int
}

// BatchFetcher retrieves the full item listing for a completed batch event.
type BatchFetcher interface {
	FetchBatchItems(ctx context.Context, batchID string) ([]BatchItem, error)
}

// Sink receives the per-item records built by the adapter.
type Sink interface {
	Dispatch(call capture.CapturedCall, method string)
}

// Adapter validates inbound webhooks and converts recognized batch
// completion events into one record per batch item.
type Adapter struct {
	secret     string
	production bool
	fetcher    BatchFetcher
	sink       Sink
	method     string
	logger     *zap.Logger
}

// NewAdapter creates a webhook adapter. method tags the resulting records'
// collector entry (normally "auto-monitor").
func NewAdapter(secret string, production bool, fetcher BatchFetcher, sink Sink, method string, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		secret:     secret,
		production: production,
		fetcher:    fetcher,
		sink:       sink,
		method:     method,
		logger:     logger,
	}
}

// event is the minimal envelope shared by provider webhook payloads.
type event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Handle validates the webhook and dispatches recognized events. It returns
// the HTTP status the caller should respond with.
func (a *Adapter) Handle(ctx context.Context, headers http.Header, body []byte) int {
	res := Verify(headers, body, a.secret, a.production, a.logger)
	if !res.OK {
		a.logger.Warn("webhook rejected", zap.String("reason", res.Message))
		return http.StatusUnauthorized
	}

	var evt event
	if err := json.Unmarshal(body, &evt); err != nil {
		a.logger.Warn("webhook payload is not valid JSON", zap.Error(err))
		return http.StatusBadRequest
	}

	switch evt.Type {
	case "batch.completed", "eval.run.succeeded", "fine_tuning.job.succeeded":
		if err := a.processBatch(ctx, evt.Data.ID); err != nil {
			a.logger.Error("failed to process batch completion",
				zap.String("batch_id", evt.Data.ID),
				zap.Error(err))
			return http.StatusBadGateway
		}
	default:
		// unrecognized event types are ignored, not erred
		a.logger.Info("ignoring webhook event", zap.String("type", evt.Type))
	}
	return http.StatusOK
}

// processBatch retrieves the batch item listing and feeds each item through
// the record builder as an intercepted pair.
func (a *Adapter) processBatch(ctx context.Context, batchID string) error {
	items, err := a.fetcher.FetchBatchItems(ctx, batchID)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, item := range items {
		a.sink.Dispatch(a.buildRecord(item, now), a.method)
	}
	a.logger.Info("dispatched batch records",
		zap.String("batch_id", batchID),
		zap.Int("items", len(items)))
	return nil
}

// buildRecord maps a batch item onto the canonical record shape: status
// defaulted to 200 when the listing omits it, never streaming.
func (a *Adapter) buildRecord(item BatchItem, now time.Time) capture.CapturedCall {
	reqBody, _ := json.Marshal(item.Request)
	respBody, _ := json.Marshal(item.Response)

	status := item.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	call := capture.Build(uuid.New().String(), capture.RequestParts{
		Method: item.Method,
		URL:    item.URL,
		Body:   reqBody,
	}, capture.ResponseParts{
		Body:       respBody,
		StatusCode: &status,
	}, capture.Timing{Start: now, End: now})
	call.IsStreaming = false
	return call
}
