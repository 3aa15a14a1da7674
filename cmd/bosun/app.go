package main

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"bosun/internal/coach"
	"bosun/internal/config"
	"bosun/internal/gateway"
	"bosun/internal/ingest"
	"bosun/internal/jobs"
	"bosun/internal/knowledge"
	"bosun/internal/orchestrator"
	"bosun/internal/platform"
	"bosun/internal/store"
	pkgconfig "bosun/pkg/config"
	"bosun/pkg/crypto"
	"bosun/pkg/database"
	"bosun/pkg/kafka"
	"bosun/pkg/logging"
	"bosun/pkg/redis"
)

// app holds the shared dependencies a command opens. Open* methods are
// idempotent so commands only pay for what they use.
type app struct {
	cfg    config.Config
	logger logging.Logger

	db       database.PostgresConn
	store    *store.Store
	redis    *goredis.Client
	producer *kafka.Producer
	enqueuer *jobs.Enqueuer
	factory  *gateway.Factory
	outbound *platform.Outbound

	closers []func() error
}

func newApp(service string) (*app, error) {
	return newAppWithLogger(logging.NewLoggerWithService(service))
}

func newAppWithLogger(logger logging.Logger) (*app, error) {
	pkgconfig.LoadEnv(logger)
	// .env may carry LOG_LEVEL.
	logger.SetLevel(pkgconfig.GetLogLevel())

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger}, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.WithError(err).Warn("Shutdown step failed")
		}
	}
	a.closers = nil
}

func (a *app) openStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	if err := a.cfg.Require("DATABASE_URL"); err != nil {
		return err
	}
	db, err := database.Connect(ctx, database.DefaultConfig(a.cfg.DatabaseURL), a.logger)
	if err != nil {
		return err
	}
	a.db = db
	a.store = store.New(db)
	a.closers = append(a.closers, db.Close)
	return nil
}

// openRedis is optional: without REDIS_URL both rate limiters are off.
func (a *app) openRedis(ctx context.Context) error {
	if a.redis != nil {
		return nil
	}
	if a.cfg.RedisURL == "" {
		a.logger.Warn("REDIS_URL not set, rate limiting disabled")
		return nil
	}
	client, err := redis.NewClientFromURL(ctx, a.cfg.RedisURL)
	if err != nil {
		return err
	}
	a.redis = client
	a.closers = append(a.closers, client.Close)
	return nil
}

func (a *app) openProducer() error {
	if a.enqueuer != nil {
		return nil
	}
	producer, err := kafka.NewProducer(a.cfg.KafkaBrokers, a.cfg.KafkaClientID, a.logger)
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	a.producer = producer
	a.enqueuer = jobs.NewEnqueuer(producer, a.cfg.KafkaJobsTopic)
	a.closers = append(a.closers, producer.Close)
	return nil
}

// gatewayFactory needs openStore and openRedis.
func (a *app) gatewayFactory() (*gateway.Factory, error) {
	if a.factory != nil {
		return a.factory, nil
	}
	decrypter, err := crypto.NewDecrypter(a.cfg.FieldEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("field encryption: %w", err)
	}
	fc := gateway.FactoryConfig{
		Settings:  a.store,
		Usage:     a.store,
		Decrypter: decrypter,
		Env:       a.cfg.GatewayEnv(),
		Logger:    a.logger,
	}
	if a.redis != nil {
		fc.Limiter = redis.NewSlidingWindow(a.redis, "bosun:ratelimit:inbound:", time.Minute)
	}
	a.factory = gateway.NewFactory(fc)
	return a.factory, nil
}

func (a *app) messenger() platform.Messenger {
	if a.cfg.PlatformAPIURL == "" {
		a.logger.Warn("PLATFORM_API_URL not set, outbound messages are logged only")
		return platform.LogMessenger{Logger: a.logger}
	}
	return a.httpMessenger()
}

func (a *app) httpMessenger() *platform.HTTPMessenger {
	return platform.NewHTTPMessenger(platform.HTTPConfig{
		BaseURL: a.cfg.PlatformAPIURL,
		Token:   a.cfg.PlatformAPIToken,
		Timeout: a.cfg.PlatformTimeout,
		Logger:  a.logger,
	})
}

// platformOutbound needs openRedis.
func (a *app) platformOutbound() *platform.Outbound {
	if a.outbound != nil {
		return a.outbound
	}
	var limiter platform.Limiter
	if a.redis != nil {
		limiter = redis.NewSlidingWindow(a.redis, "bosun:ratelimit:outbound:", time.Minute)
	}
	a.outbound = platform.NewOutbound(a.messenger(), limiter, a.cfg.OutboundRatePerMinute, a.logger)
	return a.outbound
}

func (a *app) retriever() *knowledge.Retriever {
	return knowledge.NewRetriever(a.store, a.logger)
}

// coachAgent needs openStore and openRedis.
func (a *app) coachAgent() (*coach.Agent, error) {
	if err := a.openProducer(); err != nil {
		return nil, err
	}
	gw, err := a.gatewayFactory()
	if err != nil {
		return nil, err
	}
	return coach.NewAgent(coach.Config{
		Gateway: gw,
		Store:   a.store,
		Sender:  a.platformOutbound(),
		Jobs:    a.enqueuer,
		Logger:  a.logger,
	}), nil
}

func (a *app) processor() (*orchestrator.Processor, error) {
	if err := a.openProducer(); err != nil {
		return nil, err
	}
	gw, err := a.gatewayFactory()
	if err != nil {
		return nil, err
	}
	return orchestrator.NewProcessor(orchestrator.Config{
		Store:     a.store,
		Gateway:   gw,
		Retriever: a.retriever(),
		Sender:    a.platformOutbound(),
		Links:     a.enqueuer,
		Logger:    a.logger,
	}), nil
}

func (a *app) linker() (*ingest.Linker, error) {
	gw, err := a.gatewayFactory()
	if err != nil {
		return nil, err
	}
	return ingest.NewLinker(ingest.LinkerConfig{
		Store:          a.store,
		Gateway:        gw,
		BatchSize:      a.cfg.LinkBatchSize,
		CandidateLimit: a.cfg.LinkCandidateLimit,
		Logger:         a.logger,
	}), nil
}
