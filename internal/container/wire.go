package container

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-cqrs-bounded-contexts/config"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/application"
	repo "github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/repository"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/infrastructure/memory"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/infrastructure/memqueue"
	pginfra "github.com/oksasatya/go-cqrs-bounded-contexts/internal/infrastructure/postgres"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/infrastructure/rabbitmq"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/infrastructure/redisstore"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/infrastructure/search"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/messaging"
	"github.com/oksasatya/go-cqrs-bounded-contexts/pkg/helpers"
	"github.com/oksasatya/go-cqrs-bounded-contexts/pkg/mailer"
)

// Storage is the pair of repositories selected by STORAGE_DRIVER.
type Storage struct {
	Users  repo.UserRepository
	Tokens repo.TokenRepository
	Close  func()
}

// OpenStorage connects Postgres (running migrations first when migrate is
// set) or builds the in-memory repositories.
func OpenStorage(ctx context.Context, cfg *config.Config, logger *logrus.Logger, migrate bool) (*Storage, error) {
	if cfg.StorageDriver == "memory" {
		return &Storage{
			Users:  memory.NewUserRepository(),
			Tokens: memory.NewTokenRepository(),
			Close:  func() {},
		}, nil
	}

	pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), pginfra.PoolOptions{
		MaxConns:          cfg.DBMaxConns,
		MinConns:          cfg.DBMinConns,
		MaxConnLifetime:   cfg.DBMaxConnLife,
		HealthCheckPeriod: time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if migrate {
		if err := pginfra.RunMigrations(cfg.PostgresDSN(), cfg.MigrationsDir, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	SetPGPool(pool)
	return &Storage{
		Users:  pginfra.NewUserRepository(pool),
		Tokens: pginfra.NewTokenRepository(pool),
		Close:  pool.Close,
	}, nil
}

// Broker is the messaging implementation selected by BROKER_DRIVER.
type Broker struct {
	Publisher  messaging.Publisher
	Subscriber messaging.Subscriber
	Close      func()
}

func OpenBroker(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Broker, error) {
	if cfg.BrokerDriver == "memory" {
		b := memqueue.NewBroker(0)
		return &Broker{Publisher: b, Subscriber: b, Close: b.Close}, nil
	}

	conn, err := rabbitmq.Dial(ctx, cfg.RabbitMQURL, cfg.RabbitMQConnectAttempts, cfg.RabbitMQConnectDelay, logger)
	if err != nil {
		return nil, err
	}
	b, err := rabbitmq.NewBroker(conn, rabbitmq.Options{
		Prefetch:        cfg.RabbitMQPrefetch,
		PublishTimeout:  cfg.RabbitMQPublishTimeout,
		DeadLetterQueue: cfg.DeadLetterQueue,
	}, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Broker{
		Publisher:  b,
		Subscriber: b,
		Close: func() {
			_ = b.Close()
			closeConn(conn)
		},
	}, nil
}

func closeConn(conn *amqp.Connection) {
	if conn != nil && !conn.IsClosed() {
		_ = conn.Close()
	}
}

// NewHasher returns the bcrypt hasher configured by BCRYPT_COST.
func NewHasher(cfg *config.Config) application.Hasher {
	return helpers.NewBcryptHasher(cfg.BcryptCost)
}

// NewTokenMinter returns the minter selected by TOKEN_FORMAT.
func NewTokenMinter(cfg *config.Config) application.TokenMinter {
	if cfg.TokenFormat == "jwt" {
		return helpers.NewJWTMinter(cfg.TokenSigningSecret)
	}
	return helpers.NewRandomMinter()
}

// NewUserIndex returns the Elasticsearch projection, or nil when search is
// not configured.
func NewUserIndex(cfg *config.Config, logger *logrus.Logger) *search.UserIndex {
	if len(cfg.ESAddrs()) == 0 {
		return nil
	}
	// already opened, pinged and bootstrapped in this process
	if es := GetES(); es != nil {
		return search.NewUserIndex(es, cfg.ESUsersIndex, logger)
	}
	es, err := helpers.NewESClient(helpers.ESOptions{
		Addresses: cfg.ESAddrs(),
		Username:  cfg.ElasticsearchUser,
		Password:  cfg.ElasticsearchPass,
	})
	if err != nil {
		logger.WithError(err).Warn("elasticsearch disabled")
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := helpers.PingES(ctx, es); err != nil {
		// the index stays wired; writes are best effort and reads fail fast
		logger.WithError(err).Warn("elasticsearch unreachable at start-up")
	}
	SetES(es)
	idx := search.NewUserIndex(es, cfg.ESUsersIndex, logger)
	if err := idx.EnsureIndex(ctx); err != nil {
		logger.WithError(err).Warn("elasticsearch index not created")
	}
	return idx
}

// NewCommandConsumer builds the worker-side state machine with Redis-backed
// dedup and attempt tracking when Redis is available, in-memory otherwise.
func NewCommandConsumer(cfg *config.Config, logger *logrus.Logger, users repo.UserRepository) *application.CommandConsumer {
	var (
		dedup    application.DedupStore     = memory.NewDedupStore(cfg.DedupWindow)
		attempts application.AttemptTracker = memory.NewAttemptTracker()
	)
	if rdb := GetRedis(); rdb != nil {
		dedup = redisstore.NewDedupStore(rdb, cfg.DedupWindow)
		attempts = redisstore.NewAttemptTracker(rdb, cfg.DedupWindow)
	}

	var hooks []application.UserCreatedHook
	if idx := NewUserIndex(cfg, logger); idx != nil {
		hooks = append(hooks, idx)
	}
	if cfg.MailSendEnabled {
		mg := mailer.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunSender)
		if mg.Configured() {
			hooks = append(hooks, mailer.NewWelcomeHook(mg, cfg.AppName, logger))
		} else {
			logger.Warn("MAIL_SEND_ENABLED but Mailgun not configured; welcome emails disabled")
		}
	}

	return application.NewCommandConsumer(users, NewHasher(cfg), dedup, attempts, logger, application.ConsumerConfig{
		MaxAttempts:    cfg.WorkerMaxAttempts,
		BaseRetryDelay: cfg.WorkerBaseRetryDelay,
		MaxRetryDelay:  cfg.WorkerMaxRetryDelay,
	}, hooks...)
}
