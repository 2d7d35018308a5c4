package dispatcher

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"context"

	"github.com/sofatutor/llm-observer/internal/delivery"
	"github.com/sofatutor/llm-observer/internal/eventbus"
	"go.uber.org/zap"
)

// Config holds configuration for the dispatcher service.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
	Backend       Backend
}

// Service consumes the event bus and delivers batches to the backend.
type Service struct {
	config   Config
	bus      eventbus.EventBus
	logger   *zap.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	mu              sync.Mutex
	eventsProcessed int64
	eventsDropped   int64
	eventsSent      int64
	lastProcessedAt time.Time
}

// NewService creates a dispatcher service on the given bus.
func NewService(cfg Config, bus eventbus.EventBus, logger *zap.Logger) (*Service, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("delivery backend is required")
	}
	if bus == nil {
		return nil, fmt.Errorf("event bus must not be nil")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		config: cfg,
		bus:    bus,
		logger: logger,
		stopCh: make(chan struct{}),
	}, nil
}

// Start launches the processing goroutine and returns immediately.
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.processEvents(ctx)
}

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("Starting record dispatcher")
	s.Start(ctx)
	<-ctx.Done()
	return s.Stop()
}

// Stop flushes in-flight batches and shuts the service down.
func (s *Service) Stop() error {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping record dispatcher")
		close(s.stopCh)
		s.wg.Wait()
		if s.bus != nil {
			s.bus.Stop()
		}
		if err := s.config.Backend.Close(); err != nil {
			s.logger.Error("Error closing delivery backend", zap.Error(err))
		}
	})
	return nil
}

func (s *Service) processEvents(ctx context.Context) {
	defer s.wg.Done()

	sub := s.bus.Subscribe()
	batch := make([]eventbus.Event, 0, s.config.BatchSize)
	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			s.sendBatch(ctx, batch)
			batch = batch[:0]
		}
	}

	for {
		select {
		case evt, ok := <-sub:
			if !ok {
				flush()
				return
			}
			batch = append(batch, evt)
			s.mu.Lock()
			s.eventsProcessed++
			s.lastProcessedAt = time.Now()
			s.mu.Unlock()
			if len(batch) >= s.config.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.stopCh:
			flush()
			return
		case <-ctx.Done():
			flush()
			return
		}
	}
}

// sendBatch delivers one batch with exponential backoff retry.
func (s *Service) sendBatch(ctx context.Context, batch []eventbus.Event) {
	for attempt := 0; attempt <= s.config.RetryAttempts; attempt++ {
		err := s.config.Backend.SendEvents(ctx, batch)
		if err == nil {
			s.mu.Lock()
			s.eventsSent += int64(len(batch))
			s.mu.Unlock()
			s.logger.Debug("Successfully sent batch",
				zap.Int("batch_size", len(batch)),
				zap.Int("attempt", attempt+1))
			return
		}

		var permanent *delivery.PermanentError
		if errors.As(err, &permanent) {
			s.logger.Warn("Permanent delivery error, skipping batch",
				zap.Error(err), zap.Int("batch_size", len(batch)))
			s.mu.Lock()
			s.eventsDropped += int64(len(batch))
			s.mu.Unlock()
			return
		}

		if attempt < s.config.RetryAttempts {
			backoff := time.Duration(1<<uint(attempt)) * s.config.RetryBackoff
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			s.logger.Warn("Failed to send batch, retrying",
				zap.Error(err),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			}
		} else {
			s.logger.Error("Failed to send batch after all retries",
				zap.Error(err), zap.Int("batch_size", len(batch)))
			s.mu.Lock()
			s.eventsDropped += int64(len(batch))
			s.mu.Unlock()
		}
	}
}

// Stats returns processed, dropped and sent counters.
func (s *Service) Stats() (processed, dropped, sent int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventsProcessed, s.eventsDropped, s.eventsSent
}

// HealthStatus reports dispatcher health for operators.
type HealthStatus struct {
	Healthy         bool      `json:"healthy"`
	Status          string    `json:"status"`
	EventsProcessed int64     `json:"events_processed"`
	EventsDropped   int64     `json:"events_dropped"`
	EventsSent      int64     `json:"events_sent"`
	LagCount        int64     `json:"lag_count"`
	StreamLength    int64     `json:"stream_length"`
	LastProcessedAt time.Time `json:"last_processed_at"`
	Message         string    `json:"message,omitempty"`
}

// Health returns the health status of the dispatcher.
func (s *Service) Health(ctx context.Context) HealthStatus {
	s.mu.Lock()
	status := HealthStatus{
		EventsProcessed: s.eventsProcessed,
		EventsDropped:   s.eventsDropped,
		EventsSent:      s.eventsSent,
		LastProcessedAt: s.lastProcessedAt,
	}
	s.mu.Unlock()

	if streamsBus, ok := s.bus.(*eventbus.RedisStreamsEventBus); ok {
		if pending, err := streamsBus.PendingCount(ctx); err == nil {
			status.LagCount = pending
		}
		if length, err := streamsBus.StreamLength(ctx); err == nil {
			status.StreamLength = length
		}
		if status.LagCount > 10000 {
			status.Healthy = false
			status.Status = "unhealthy"
			status.Message = fmt.Sprintf("High lag: %d pending messages", status.LagCount)
			return status
		}
	}

	status.Healthy = true
	status.Status = "healthy"
	return status
}
