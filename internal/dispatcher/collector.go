package dispatcher

import (
	"context"

	"github.com/sofatutor/llm-observer/internal/delivery"
	"github.com/sofatutor/llm-observer/internal/eventbus"
)

// CollectorBackend delivers batched records to the analytics collector
// through the delivery client, one POST per record.
type CollectorBackend struct {
	client *delivery.Client
}

// NewCollectorBackend creates a backend on an existing delivery client.
func NewCollectorBackend(client *delivery.Client) *CollectorBackend {
	return &CollectorBackend{client: client}
}

// Init is a no-op; the delivery client carries its own configuration.
func (b *CollectorBackend) Init(cfg map[string]string) error { return nil }

// SendEvents posts each record in the batch. The first retryable failure
// aborts the batch so the dispatcher's backoff applies; records already
// delivered are not resent because the collector deduplicates on call id.
func (b *CollectorBackend) SendEvents(ctx context.Context, events []eventbus.Event) error {
	for _, evt := range events {
		var err error
		if evt.OutOfBand {
			_, err = b.client.SendResponse(ctx, evt.Call, evt.CaptureMethod)
		} else {
			_, err = b.client.SendRequestLog(ctx, evt.Call, evt.CaptureMethod)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op.
func (b *CollectorBackend) Close() error { return nil }
