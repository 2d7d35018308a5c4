package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sofatutor/llm-observer/internal/config"
	"github.com/sofatutor/llm-observer/internal/delivery"
	"github.com/sofatutor/llm-observer/internal/dispatcher"
	"github.com/sofatutor/llm-observer/internal/eventbus"
	"github.com/sofatutor/llm-observer/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	dispatchBackend string
	dispatchOutFile string
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run the buffered delivery worker",
	Long: `Consume finished records from the Redis Streams event bus and deliver them
in batches. Applications publish to the bus by enabling the buffered pipeline
with the redis backend; this worker can then run in a separate process.`,
	RunE: runDispatch,
}

func init() {
	dispatchCmd.Flags().StringVar(&dispatchBackend, "backend", "collector", "Delivery backend: collector or file")
	dispatchCmd.Flags().StringVar(&dispatchOutFile, "out", "", "Output path for the file backend")
	rootCmd.AddCommand(dispatchCmd)
}

func runDispatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.New()
	if err != nil {
		return err
	}

	logger, err := logging.ForSilent(cfg.Silent, cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var backend dispatcher.Backend
	switch dispatchBackend {
	case "collector":
		backend = dispatcher.NewCollectorBackend(delivery.NewClient(delivery.Options{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Debug:   cfg.DebugMode,
			Source:  cfg.Source,
			Logger:  logger,
		}))
	case "file":
		fb := dispatcher.NewFileBackend()
		if err := fb.Init(map[string]string{"filepath": dispatchOutFile}); err != nil {
			return err
		}
		backend = fb
	default:
		return fmt.Errorf("unknown backend %q", dispatchBackend)
	}

	// an in-memory bus is invisible across processes, so a standalone
	// worker only makes sense against the redis backend
	if cfg.EventBusBackend != "redis" {
		return fmt.Errorf("dispatch requires LLM_OBSERVER_EVENT_BUS=redis, got %q", cfg.EventBusBackend)
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	bus := eventbus.NewRedisStreamsEventBus(
		&eventbus.GoRedisAdapter{Client: redisClient},
		eventbus.DefaultStreamsConfig(),
	)

	svc, err := dispatcher.NewService(dispatcher.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		RetryAttempts: cfg.RetryAttempts,
		RetryBackoff:  cfg.RetryBackoff,
		Backend:       backend,
	}, bus, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Info("Received shutdown signal")
		cancel()
	}()

	logger.Info("Dispatch worker starting",
		zap.String("backend", dispatchBackend),
		zap.String("redis_addr", cfg.RedisAddr))
	return svc.Run(ctx)
}
