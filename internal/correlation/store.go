// Package correlation provides per-call scratch state shared between
// interceptor layers: a stream-chunk buffer, a parking area for records whose
// completion arrives out-of-band, and a cross-layer suppression claim. All
// per-call state travels on the request context, so concurrent calls never
// see each other's slots.
package correlation

import (
	"bytes"
	"context"
	"sync"
)

type ctxKey int

const (
	claimKey ctxKey = iota
	bufferKey
)

// Claim marks the call as owned by one interceptor layer. It returns the
// derived context and true when the claim was acquired, or the original
// context and false when another layer already claimed this call. A layer
// that fails to acquire the claim must forward the call untouched.
func Claim(ctx context.Context) (context.Context, bool) {
	if Claimed(ctx) {
		return ctx, false
	}
	return context.WithValue(ctx, claimKey, true), true
}

// Claimed reports whether an interceptor layer has already claimed the call.
func Claimed(ctx context.Context) bool {
	claimed, _ := ctx.Value(claimKey).(bool)
	return claimed
}

// Buffer accumulates raw response chunks during an incremental body read.
type Buffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write appends a chunk. Always succeeds.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// Take returns the accumulated bytes and clears the buffer. It returns nil
// when nothing was buffered, in which case the caller falls back to the
// whole buffered body.
func (b *Buffer) Take() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buf.Len() == 0 {
		return nil
	}
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	b.buf.Reset()
	return out
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

// WithBuffer installs a fresh stream buffer on the context for the duration
// of a call and returns it alongside the derived context.
func WithBuffer(ctx context.Context) (context.Context, *Buffer) {
	b := &Buffer{}
	return context.WithValue(ctx, bufferKey, b), b
}

// BufferFrom retrieves the stream buffer installed by WithBuffer, if any.
func BufferFrom(ctx context.Context) (*Buffer, bool) {
	b, ok := ctx.Value(bufferKey).(*Buffer)
	return b, ok
}
