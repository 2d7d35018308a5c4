package interceptor

import "net/http"

// WrapClient installs observation on an http.Client by chaining the
// transport middleware in front of the client's own transport. Registration
// is idempotent: wrapping an already-wrapped client is a no-op, so client
// construction helpers can call this unconditionally without stacking
// interceptors.
func WrapClient(c *http.Client, base *Transport) *http.Client {
	if c == nil {
		return &http.Client{Transport: base}
	}
	if IsWrapped(c.Transport) {
		return c
	}
	c.Transport = base.withInner(c.Transport)
	return c
}

// IsWrapped reports whether rt is already an observation transport.
func IsWrapped(rt http.RoundTripper) bool {
	_, ok := rt.(*Transport)
	return ok
}

// Chain clones the transport around a different inner RoundTripper. The
// parked-record store is shared, so FinishStreaming resolves ids from any
// chained transport.
func (t *Transport) Chain(inner http.RoundTripper) *Transport {
	return t.withInner(inner)
}

// withInner clones the transport around a different inner RoundTripper.
// The parked-record store is shared, so FinishStreaming resolves ids from
// any wrapped client.
func (t *Transport) withInner(inner http.RoundTripper) *Transport {
	if inner == nil {
		inner = http.DefaultTransport
	}
	clone := *t
	clone.inner = inner
	return &clone
}
