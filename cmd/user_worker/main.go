package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"

	"github.com/oksasatya/go-cqrs-bounded-contexts/config"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/application"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/container"
	"github.com/oksasatya/go-cqrs-bounded-contexts/pkg/helpers"
)

// in-flight commands may be sleeping through a retry backoff
const shutdownTimeout = 45 * time.Second

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if cfg.BrokerDriver == "memory" {
		log.Println("BROKER_DRIVER=memory; the API process runs the command workers in-process, nothing to do here")
		return
	}
	logger := helpers.NewLogger(cfg.AppName+"-user-worker", cfg.Env, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container.SetConfig(cfg)
	container.SetLogger(logger)

	// migrations belong to the API process
	store, err := container.OpenStorage(ctx, cfg, logger, false)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer store.Close()

	if cfg.RedisAddr != "" {
		rdb := helpers.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := helpers.PingRedis(ctx, rdb); err != nil {
			logger.WithError(err).Warn("redis unavailable, dedup and attempts fall back to process memory")
			_ = rdb.Close()
		} else {
			container.SetRedis(rdb)
			defer func() { _ = rdb.Close() }()
		}
	}

	broker, err := container.OpenBroker(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("broker: %v", err)
	}
	defer broker.Close()

	consumer := container.NewCommandConsumer(cfg, logger, store.Users)
	pool := application.NewWorkerPool(broker.Subscriber, cfg.RabbitMQUserCommandsQueue, consumer, cfg.WorkerConcurrency, logger)

	done := make(chan struct{})
	failed := make(chan error, 1)
	go func() {
		defer close(done)
		if err := pool.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			failed <- err
		}
	}()

	wait := gfshutdown.GracefulShutdown(context.Background(), shutdownTimeout, map[string]gfshutdown.Operation{
		"user-worker": func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})

	code := 0
	select {
	case code = <-wait:
	case err := <-failed:
		// a worker that consumes nothing must not look healthy to its supervisor
		logger.WithError(err).Error("worker pool stopped")
		code = 1
	}
	logger.WithField("exit_code", code).Info("user worker exited")
	if code != 0 {
		broker.Close()
		store.Close()
		os.Exit(code)
	}
}
