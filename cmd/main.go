package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/oksasatya/go-cqrs-bounded-contexts/config"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/application"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/container"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/interface/middleware"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/router"
	"github.com/oksasatya/go-cqrs-bounded-contexts/pkg/helpers"
	"github.com/oksasatya/go-cqrs-bounded-contexts/pkg/validation"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load() // load .env if present

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	logger := helpers.NewLogger(cfg.AppName, cfg.Env, cfg.LogLevel)
	gin.SetMode(cfg.GinMode)
	validation.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container.SetConfig(cfg)
	container.SetLogger(logger)

	store, err := container.OpenStorage(ctx, cfg, logger, true)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer store.Close()

	// Redis is optional: rate limits and the shared dedup store need it
	if cfg.RedisAddr != "" {
		rdb := helpers.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := helpers.PingRedis(ctx, rdb); err != nil {
			logger.WithError(err).Warn("redis unavailable, continuing without it")
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

	hasher := container.NewHasher(cfg)
	gateway := application.NewDirectUsersGateway(store.Users, hasher, logger)
	var searcher application.UserSearcher
	if idx := container.NewUserIndex(cfg, logger); idx != nil {
		searcher = idx
	}

	container.SetCommandPublisher(application.NewCommandPublisher(broker.Publisher, cfg.RabbitMQUserCommandsQueue, logger))
	container.SetTokenService(application.NewTokenService(gateway, store.Tokens, hasher, container.NewTokenMinter(cfg), cfg.TokenTTL, logger))
	container.SetUserQueries(application.NewUserQueries(store.Users, searcher))
	container.SetUsersGateway(gateway)

	// With the in-process broker nothing else can drain the queue
	workersDone := make(chan struct{})
	if cfg.BrokerDriver == "memory" {
		consumer := container.NewCommandConsumer(cfg, logger, store.Users)
		pool := application.NewWorkerPool(broker.Subscriber, cfg.RabbitMQUserCommandsQueue, consumer, cfg.WorkerConcurrency, logger)
		go func() {
			defer close(workersDone)
			if err := pool.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Error("in-process worker pool stopped")
			}
		}()
	} else {
		close(workersDone)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.RealIP(cfg.TrustProxyHeaders))
	// cors.New panics on an empty origin list
	if origins := cfg.CORSOrigins(); len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
			ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	reg := router.NewRegistry(r, logger)
	if cfg.HTTPLogEnabled {
		reg.Use(gin.Logger())
	}
	router.InitModules(reg)
	reg.RegisterAll()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Infof("server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %s", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(context.Background(), shutdownTimeout, map[string]gfshutdown.Operation{
		"http": func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
		"workers": func(ctx context.Context) error {
			cancel()
			select {
			case <-workersDone:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
	code := <-wait
	logger.WithField("exit_code", code).Info("server exited")
	if code != 0 {
		os.Exit(code)
	}
}
