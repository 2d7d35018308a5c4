// Package dispatcher runs the buffered delivery pipeline: it consumes
// finished records from an event bus, batches them and hands them to a
// delivery backend with retry. The default interceptor path does not need
// it; high-volume hosts opt in to smooth out collector load.
package dispatcher

import (
	"context"

	"github.com/sofatutor/llm-observer/internal/eventbus"
)

// Backend receives batches of finished records.
type Backend interface {
	// Init initializes the backend with configuration.
	Init(cfg map[string]string) error
	// SendEvents delivers a batch. Returning *delivery.PermanentError skips
	// retries for the batch.
	SendEvents(ctx context.Context, events []eventbus.Event) error
	// Close cleans up any resources used by the backend.
	Close() error
}
