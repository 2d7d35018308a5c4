package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sofatutor/llm-observer/internal/capture"
	"github.com/sofatutor/llm-observer/internal/delivery"
	"github.com/sofatutor/llm-observer/internal/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBackend records batches and fails the first failCount sends.
type mockBackend struct {
	mu        sync.Mutex
	batches   [][]eventbus.Event
	failCount int
	failWith  error
}

func (m *mockBackend) Init(cfg map[string]string) error { return nil }
func (m *mockBackend) Close() error                     { return nil }

func (m *mockBackend) SendEvents(ctx context.Context, events []eventbus.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCount > 0 {
		m.failCount--
		if m.failWith != nil {
			return m.failWith
		}
		return fmt.Errorf("transient backend failure")
	}
	cp := make([]eventbus.Event, len(events))
	copy(cp, events)
	m.batches = append(m.batches, cp)
	return nil
}

func (m *mockBackend) batchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func (m *mockBackend) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func newTestService(t *testing.T, backend Backend, bus eventbus.EventBus) *Service {
	t.Helper()
	svc, err := NewService(Config{
		BatchSize:     3,
		FlushInterval: 50 * time.Millisecond,
		RetryAttempts: 2,
		RetryBackoff:  10 * time.Millisecond,
		Backend:       backend,
	}, bus, nil)
	require.NoError(t, err)
	return svc
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(Config{}, eventbus.NewInMemoryEventBus(1), nil)
	assert.Error(t, err)

	_, err = NewService(Config{Backend: &mockBackend{}}, nil, nil)
	assert.Error(t, err)
}

func TestService_BatchesBySize(t *testing.T) {
	backend := &mockBackend{}
	bus := eventbus.NewInMemoryEventBus(10)
	svc := newTestService(t, backend, bus)

	svc.Start(context.Background())
	for i := 0; i < 3; i++ {
		bus.Publish(context.Background(), eventbus.Event{Call: capture.CapturedCall{ID: fmt.Sprintf("c-%d", i)}})
	}

	require.Eventually(t, func() bool { return backend.eventCount() == 3 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, svc.Stop())

	require.Equal(t, 1, backend.batchCount())
	_, dropped, sent := svc.Stats()
	assert.Equal(t, int64(0), dropped)
	assert.Equal(t, int64(3), sent)
}

func TestService_FlushesOnInterval(t *testing.T) {
	backend := &mockBackend{}
	bus := eventbus.NewInMemoryEventBus(10)
	svc := newTestService(t, backend, bus)

	svc.Start(context.Background())
	bus.Publish(context.Background(), eventbus.Event{Call: capture.CapturedCall{ID: "lone"}})

	// one event, below batch size: the ticker flushes it
	require.Eventually(t, func() bool { return backend.eventCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, svc.Stop())
}

func TestService_FlushesOnStop(t *testing.T) {
	backend := &mockBackend{}
	bus := eventbus.NewInMemoryEventBus(10)
	svc, err := NewService(Config{
		BatchSize:     100,
		FlushInterval: time.Hour,
		Backend:       backend,
	}, bus, nil)
	require.NoError(t, err)

	svc.Start(context.Background())
	bus.Publish(context.Background(), eventbus.Event{Call: capture.CapturedCall{ID: "pending"}})
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, svc.Stop())

	assert.Equal(t, 1, backend.eventCount())
}

func TestService_RetriesTransientFailures(t *testing.T) {
	backend := &mockBackend{failCount: 2}
	bus := eventbus.NewInMemoryEventBus(10)
	svc := newTestService(t, backend, bus)

	svc.Start(context.Background())
	bus.Publish(context.Background(), eventbus.Event{Call: capture.CapturedCall{ID: "retry-me"}})

	require.Eventually(t, func() bool { return backend.eventCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, svc.Stop())
}

func TestService_PermanentErrorSkipsRetries(t *testing.T) {
	backend := &mockBackend{failCount: 1, failWith: &delivery.PermanentError{Msg: "rejected"}}
	bus := eventbus.NewInMemoryEventBus(10)
	svc := newTestService(t, backend, bus)

	svc.Start(context.Background())
	bus.Publish(context.Background(), eventbus.Event{Call: capture.CapturedCall{ID: "bad"}})

	require.Eventually(t, func() bool {
		_, dropped, _ := svc.Stats()
		return dropped == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, svc.Stop())

	assert.Equal(t, 0, backend.eventCount())
}

func TestService_Health(t *testing.T) {
	backend := &mockBackend{}
	bus := eventbus.NewInMemoryEventBus(10)
	svc := newTestService(t, backend, bus)

	status := svc.Health(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, "healthy", status.Status)
}

func TestFileBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	b := NewFileBackend()

	require.Error(t, b.Init(map[string]string{}))
	require.NoError(t, b.Init(map[string]string{"filepath": path}))

	events := []eventbus.Event{
		{Call: capture.CapturedCall{ID: "a"}},
		{Call: capture.CapturedCall{ID: "b"}, OutOfBand: true},
	}
	require.NoError(t, b.SendEvents(context.Background(), events))
	require.NoError(t, b.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var evt eventbus.Event
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &evt))
	assert.Equal(t, "b", evt.Call.ID)
	assert.True(t, evt.OutOfBand)
}
