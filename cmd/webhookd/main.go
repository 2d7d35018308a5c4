// Command webhookd receives provider batch webhooks, verifies their
// signatures, fetches the referenced batch results and forwards each
// completed call through the regular delivery path.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	llmobserver "github.com/sofatutor/llm-observer"
	"github.com/sofatutor/llm-observer/internal/config"
	"github.com/sofatutor/llm-observer/internal/webhook"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "webhookd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		return err
	}

	mon, err := llmobserver.New(cfg)
	if err != nil {
		return err
	}
	defer mon.Shutdown()

	fetcher := webhook.NewOpenAIBatchClient(
		os.Getenv("OPENAI_BASE_URL"),
		os.Getenv("OPENAI_API_KEY"),
		nil,
	)

	srv := webhook.NewServer(webhook.ServerConfig{
		ListenAddr: cfg.WebhookListenAddr,
		Debug:      cfg.DebugMode,
	}, mon.WebhookAdapter(fetcher), mon.Logger())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigs:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
