package correlation

import "sync"

// PendingStore parks partially-built records keyed by call id until an
// out-of-band completion signal supplies the response side. Records that
// never receive a completion signal stay parked and are never sent; there is
// deliberately no TTL-based eviction, only a count for operators to watch.
type PendingStore[T any] struct {
	mu sync.Mutex
	m  map[string]T
}

// NewPendingStore creates an empty store.
func NewPendingStore[T any]() *PendingStore[T] {
	return &PendingStore[T]{m: map[string]T{}}
}

// Park stores a partial record under its call id, replacing any previous
// entry for the same id.
func (s *PendingStore[T]) Park(id string, v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[id] = v
}

// Complete removes and returns the parked record for id.
func (s *PendingStore[T]) Complete(id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[id]
	if ok {
		delete(s.m, id)
	}
	return v, ok
}

// Len returns the number of parked records.
func (s *PendingStore[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
