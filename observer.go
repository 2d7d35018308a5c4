// Package llmobserver instruments outbound HTTP calls to LLM provider APIs
// and forwards normalized request/response records to a remote analytics
// collector. Observation never alters a wrapped call's result, error or
// timing; delivery is asynchronous and best-effort.
//
// The one-line setup is:
//
//	mon, err := llmobserver.New(cfg)
//	client := mon.WrapClient(&http.Client{})
//
// or, to observe everything going through http.DefaultTransport:
//
//	llmobserver.Install(mon)
package llmobserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sofatutor/llm-observer/internal/capture"
	"github.com/sofatutor/llm-observer/internal/config"
	"github.com/sofatutor/llm-observer/internal/delivery"
	"github.com/sofatutor/llm-observer/internal/dispatcher"
	"github.com/sofatutor/llm-observer/internal/eventbus"
	"github.com/sofatutor/llm-observer/internal/interceptor"
	"github.com/sofatutor/llm-observer/internal/logging"
	"github.com/sofatutor/llm-observer/internal/webhook"
	"go.uber.org/zap"
)

// Feedback re-exports the delivery feedback shape for SDK users.
type Feedback = delivery.Feedback

// Monitor is the composition root: it owns the delivery client, the
// intercept targets and the optional buffered pipeline.
type Monitor struct {
	cfg       *config.Config
	logger    *zap.Logger
	client    *delivery.Client
	transport *interceptor.Transport
	bus       eventbus.EventBus
	service   *dispatcher.Service
	cancel    context.CancelFunc
}

// Option customizes a Monitor.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	httpClient *http.Client
	buffered   bool
	bus        eventbus.EventBus
}

// WithLogger supplies a logger; by default one is built from the config's
// log settings with the silent toggle applied.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHTTPClient overrides the HTTP client used for collector calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithBufferedPipeline routes records through an event bus and a batching
// dispatcher instead of one goroutine per record. The bus backend comes from
// the config unless an explicit bus is given.
func WithBufferedPipeline(bus eventbus.EventBus) Option {
	return func(o *options) {
		o.buffered = true
		o.bus = bus
	}
}

// New creates a Monitor from configuration. A missing API key or empty
// target list already failed inside config.New; this constructor does not
// re-validate.
func New(cfg *config.Config, opts ...Option) (*Monitor, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.ForSilent(cfg.Silent, cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
		if err != nil {
			return nil, err
		}
	}

	client := delivery.NewClient(delivery.Options{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Debug:      cfg.DebugMode,
		Source:     cfg.Source,
		HTTPClient: o.httpClient,
		Logger:     logger,
	})

	m := &Monitor{cfg: cfg, logger: logger, client: client}

	var sink interceptor.Sink = client
	if o.buffered {
		bus := o.bus
		if bus == nil {
			var err error
			bus, err = newBusFromConfig(cfg)
			if err != nil {
				return nil, err
			}
		}
		svc, err := dispatcher.NewService(dispatcher.Config{
			BatchSize:     cfg.BatchSize,
			FlushInterval: cfg.FlushInterval,
			RetryAttempts: cfg.RetryAttempts,
			RetryBackoff:  cfg.RetryBackoff,
			Backend:       dispatcher.NewCollectorBackend(client),
		}, bus, logger)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithCancel(context.Background())
		svc.Start(ctx)
		m.bus = bus
		m.service = svc
		m.cancel = cancel
		sink = eventbus.Publisher{Bus: bus}
	}

	targets := interceptor.NewTargets(cfg.InterceptAddresses)
	m.transport = interceptor.NewTransport(nil, targets, sink, logger)
	return m, nil
}

// newBusFromConfig selects the event bus backend for the buffered pipeline.
func newBusFromConfig(cfg *config.Config) (eventbus.EventBus, error) {
	switch cfg.EventBusBackend {
	case "", "in-memory":
		return eventbus.NewInMemoryEventBus(cfg.EventBusBuffer), nil
	case "redis":
		rc := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		return eventbus.NewRedisStreamsEventBus(
			&eventbus.GoRedisAdapter{Client: rc},
			eventbus.DefaultStreamsConfig(),
		), nil
	default:
		return nil, fmt.Errorf("unknown event bus backend %q", cfg.EventBusBackend)
	}
}

// NewFromEnv builds a Monitor from environment configuration.
func NewFromEnv(opts ...Option) (*Monitor, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// WrapClient installs observation on an http.Client. Idempotent: wrapping a
// wrapped client is a no-op.
func (m *Monitor) WrapClient(c *http.Client) *http.Client {
	return interceptor.WrapClient(c, m.transport)
}

// Transport returns an observing RoundTripper chained in front of inner.
func (m *Monitor) Transport(inner http.RoundTripper) http.RoundTripper {
	if interceptor.IsWrapped(inner) {
		return inner
	}
	return m.transport.Chain(inner)
}

func (m *Monitor) sink() interceptor.Sink {
	if m.bus != nil {
		return eventbus.Publisher{Bus: m.bus}
	}
	return m.client
}

// WithExternalCompletion marks the call on ctx as streaming with an
// out-of-band completion; the returned id is later passed to
// FinishStreaming.
func (m *Monitor) WithExternalCompletion(ctx context.Context) (context.Context, string) {
	return interceptor.WithExternalCompletion(ctx)
}

// FinishStreaming completes a parked streaming record with the final
// accumulated response and delivers it.
func (m *Monitor) FinishStreaming(id string, finalResponse any) bool {
	return m.transport.FinishStreaming(id, finalResponse)
}

// SendRequestLog submits a manually built record. Best-effort: the returned
// id is empty when delivery failed.
func (m *Monitor) SendRequestLog(ctx context.Context, call capture.CapturedCall) string {
	id, err := m.client.SendRequestLog(ctx, call, delivery.MethodManual)
	if err != nil {
		m.logger.Warn("manual request log delivery failed", zap.Error(err))
		return ""
	}
	return id
}

// SendFeedback submits a feedback record for an earlier request log.
func (m *Monitor) SendFeedback(ctx context.Context, fb Feedback) string {
	id, err := m.client.SendFeedback(ctx, fb)
	if err != nil {
		m.logger.Warn("feedback delivery failed", zap.Error(err))
		return ""
	}
	return id
}

// WebhookAdapter builds the inbound webhook adapter wired to this monitor's
// delivery path.
func (m *Monitor) WebhookAdapter(fetcher webhook.BatchFetcher) *webhook.Adapter {
	return webhook.NewAdapter(
		m.cfg.WebhookSecret,
		m.cfg.IsProduction(),
		fetcher,
		m.sink(),
		delivery.MethodAutoMonitor,
		m.logger,
	)
}

// Logger returns the monitor's logger so callers can share it.
func (m *Monitor) Logger() *zap.Logger {
	return m.logger
}

// Shutdown flushes the buffered pipeline, if any. Fire-and-forget records
// already in flight on detached goroutines are not awaited.
func (m *Monitor) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.service != nil {
		_ = m.service.Stop()
	}
}

// installMu guards the process-wide default-transport installation.
// Repeated initialization must be safe and must not stack interceptors.
var (
	installMu        sync.Mutex
	installedDefault http.RoundTripper
)

// Install wraps http.DefaultTransport with the monitor's interceptor so
// every client using the default transport is observed. Safe under repeated
// calls: at most one interceptor layer is installed.
func Install(m *Monitor) {
	installMu.Lock()
	defer installMu.Unlock()
	if interceptor.IsWrapped(http.DefaultTransport) {
		return
	}
	installedDefault = http.DefaultTransport
	http.DefaultTransport = m.Transport(http.DefaultTransport)
}

// Uninstall restores the transport replaced by Install.
func Uninstall() {
	installMu.Lock()
	defer installMu.Unlock()
	if installedDefault != nil {
		http.DefaultTransport = installedDefault
		installedDefault = nil
	}
}
