// Package eventbus moves finished call records from interceptors to the
// batching dispatcher when the buffered delivery pipeline is enabled.
package eventbus

import (
	"context"
	"sync"

	"github.com/sofatutor/llm-observer/internal/capture"
)

// Event is one finished record traveling through the pipeline.
type Event struct {
	Call capture.CapturedCall `json:"call"`
	// CaptureMethod distinguishes auto-monitored from manually submitted
	// records in the collector tag.
	CaptureMethod string `json:"capture_method"`
	// OutOfBand marks records completed via an external streaming signal;
	// they go to the llm_responses endpoint.
	OutOfBand bool `json:"out_of_band,omitempty"`
}

// EventBus is a simple interface for publishing events to subscribers.
type EventBus interface {
	Publish(ctx context.Context, evt Event)
	Subscribe() <-chan Event
	Stop()
}

// InMemoryEventBus is a basic EventBus implementation backed by a buffered channel.
type InMemoryEventBus struct {
	ch       chan Event
	stopOnce sync.Once
}

// NewInMemoryEventBus creates a new in-memory event bus with the given buffer size.
func NewInMemoryEventBus(bufferSize int) *InMemoryEventBus {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &InMemoryEventBus{ch: make(chan Event, bufferSize)}
}

// Publish sends an event to the bus without blocking if the buffer is full.
func (b *InMemoryEventBus) Publish(ctx context.Context, evt Event) {
	defer func() {
		// a Publish racing Stop loses the event, same as a full buffer
		_ = recover()
	}()
	select {
	case b.ch <- evt:
	default:
		// drop event if buffer is full
	}
}

// Subscribe returns a channel that receives events published to the bus.
func (b *InMemoryEventBus) Subscribe() <-chan Event {
	return b.ch
}

// Stop closes the bus channel so consumers drain and exit.
func (b *InMemoryEventBus) Stop() {
	b.stopOnce.Do(func() { close(b.ch) })
}

// Publisher adapts an EventBus to the interceptor's dispatch seam, so
// records can be routed through the buffered pipeline instead of one
// goroutine per record.
type Publisher struct {
	Bus EventBus
}

// Dispatch publishes a finished record without blocking the caller.
func (p Publisher) Dispatch(call capture.CapturedCall, method string) {
	p.Bus.Publish(context.Background(), Event{Call: call, CaptureMethod: method})
}

// DispatchResponse publishes an out-of-band streaming completion.
func (p Publisher) DispatchResponse(rawResponse any, method string) {
	call, ok := rawResponse.(capture.CapturedCall)
	if !ok {
		return
	}
	p.Bus.Publish(context.Background(), Event{Call: call, CaptureMethod: method, OutOfBand: true})
}
