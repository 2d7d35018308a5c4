// Package interceptor hooks into an HTTP client's request lifecycle to
// observe calls to configured LLM provider endpoints without altering their
// behavior. The seam is an explicit http.RoundTripper middleware plus a
// client wrapper, not a runtime patch.
package interceptor

import "strings"

// Targets is the configured set of address substrings selecting observed
// calls. A URL matches when it contains any target as a substring.
type Targets struct {
	addrs []string
}

// NewTargets builds a target set. The caller (configuration) guarantees the
// list is non-empty; an empty list here matches nothing.
func NewTargets(addrs []string) *Targets {
	return &Targets{addrs: append([]string(nil), addrs...)}
}

// Match reports whether url should be observed.
func (t *Targets) Match(url string) bool {
	for _, addr := range t.addrs {
		if addr != "" && strings.Contains(url, addr) {
			return true
		}
	}
	return false
}
