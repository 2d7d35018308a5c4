package webhook

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server exposes the webhook adapter over HTTP. It accepts provider
// callbacks on POST /webhooks/:source and answers health probes.
type Server struct {
	engine  *gin.Engine
	server  *http.Server
	adapter *Adapter
	logger  *zap.Logger
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	ListenAddr string
	Debug      bool
	// MaxBodyBytes caps the accepted webhook payload size. Zero means
	// DefaultMaxWebhookBytes.
	MaxBodyBytes int64
}

// DefaultMaxWebhookBytes bounds inbound webhook bodies. Provider event
// notifications are small; the batch content itself is fetched separately.
const DefaultMaxWebhookBytes = 1 << 20

// NewServer wires the adapter into a gin engine.
func NewServer(cfg ServerConfig, adapter *Adapter, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:  engine,
		adapter: adapter,
		logger:  logger,
		server: &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      engine,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxWebhookBytes
	}

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.POST("/webhooks/:source", func(c *gin.Context) {
		s.handleWebhook(c, maxBytes)
	})

	return s
}

func (s *Server) handleWebhook(c *gin.Context, maxBytes int64) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	if int64(len(body)) > maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
		return
	}

	source := c.Param("source")
	status := s.adapter.Handle(c.Request.Context(), c.Request.Header, body)
	s.logger.Info("webhook handled",
		zap.String("source", source),
		zap.Int("status", status),
		zap.Int("body_bytes", len(body)))

	switch status {
	case http.StatusOK:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case http.StatusUnauthorized:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
	case http.StatusBadRequest:
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
	default:
		c.JSON(status, gin.H{"error": "processing failed"})
	}
}

// Start blocks serving HTTP until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.logger.Info("Webhook server starting", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}
