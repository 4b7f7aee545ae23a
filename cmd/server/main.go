package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/brainwaves/notification/internal/application"
	"github.com/brainwaves/notification/internal/cache"
	"github.com/brainwaves/notification/internal/config"
	"github.com/brainwaves/notification/internal/domain"
	"github.com/brainwaves/notification/internal/infrastructure/memory"
	"github.com/brainwaves/notification/internal/infrastructure/postgres"
	"github.com/brainwaves/notification/internal/infrastructure/redisbus"
	kafkaconsumer "github.com/brainwaves/notification/internal/kafka"
	"github.com/brainwaves/notification/internal/pkg/worker"
	transporthttp "github.com/brainwaves/notification/internal/transport/http"
)

func main() {
	// ── Logging ──────────────────────────────────────────────────────────────
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// ── Config ───────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if cfg.Server.Env == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().Str("env", cfg.Server.Env).Str("port", cfg.Server.Port).Msg("starting blog-notification")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Store ────────────────────────────────────────────────────────────────
	var (
		repo domain.Repository
		dir  domain.Directory
	)
	switch cfg.Database.Driver {
	case "memory":
		repo, dir = memory.NewRepository(), memory.NewDirectory()
		log.Warn().Msg("using in-memory store, data is lost on restart")
	default:
		pool, err := pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("postgres ping failed")
		}
		log.Info().Msg("postgres connected")
		repo, dir = postgres.New(pool), postgres.NewDirectory(pool)
	}

	// ── Cache & Realtime ─────────────────────────────────────────────────────
	hub := transporthttp.NewHub()
	var (
		store     cache.Cache = cache.Noop{}
		publisher application.Publisher = hub
	)
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis ping failed")
		}
		store = cache.WithTimeout(cache.NewRedis(rdb), cfg.Redis.OpTimeout)

		bus := redisbus.New(rdb, hub)
		if err := bus.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to subscribe to realtime channels")
		}
		publisher = bus
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis connected")
	}

	// ── Worker Pool ──────────────────────────────────────────────────────────
	workers, err := worker.New(context.Background(), "batcher", cfg.Worker.PoolSize)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create worker pool")
	}

	// ── Application Service ──────────────────────────────────────────────────
	n := cfg.Notifications
	svc := application.NewService(repo, store, publisher, application.Options{
		DedupWindow:  n.DedupWindow,
		UnreadTTL:    n.UnreadTTL,
		ListTTL:      n.ListTTL,
		DefaultLimit: n.DefaultLimit,
		MaxLimit:     n.MaxLimit,
	})
	batcher := application.NewBatcher(svc, workers, application.BatchOptions{
		Size:  n.BatchSize,
		Delay: n.BatchDelay,
	})
	triggers := application.NewTriggers(svc, batcher, dir, n.ContentMax)

	// ── HTTP Server ──────────────────────────────────────────────────────────
	handler := transporthttp.NewHandler(svc, hub)
	handler.AddHealthCheck("store", func() any { return cfg.Database.Driver })
	handler.AddHealthCheck("workers", func() any { return workers.Metrics() })
	handler.AddHealthCheck("batch_pending", func() any { return batcher.Pending() })
	router := transporthttp.NewRouter(handler, transporthttp.AuthConfig{
		JWTSecret:     cfg.Auth.JWTSecret,
		JWTIssuer:     cfg.Auth.JWTIssuer,
		WebhookSecret: cfg.Auth.WebhookSecret,
	})

	// ── Kafka Consumer ───────────────────────────────────────────────────────
	if cfg.Kafka.Enabled {
		consumer, err := kafkaconsumer.New(
			cfg.Kafka.Brokers,
			cfg.Kafka.ConsumerGroupID,
			cfg.Kafka.Topics,
			triggers,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create kafka consumer")
		}

		// Start Kafka consumer in background
		go consumer.Start(ctx)
		log.Info().Strs("topics", cfg.Kafka.Topics).Msg("kafka consumer started")
	}

	// ── TTL Purge Job ────────────────────────────────────────────────────────
	scheduler := cron.New()
	scheduler.Schedule(cron.Every(cfg.TTL.PurgeInterval), cron.FuncJob(func() {
		svc.PurgeTTL(context.Background(), cfg.TTL.RetentionDays)
	}))
	scheduler.Start()
	log.Info().Dur("interval", cfg.TTL.PurgeInterval).Int("retention_days", cfg.TTL.RetentionDays).Msg("retention purge scheduled")

	// ── Start HTTP Server ────────────────────────────────────────────────────
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("HTTP server listening")
		if err := router.Start(":" + cfg.Server.Port); err != nil {
			log.Info().Msg("HTTP server stopped")
		}
	}()

	// ── Graceful Shutdown ────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := router.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	<-scheduler.Stop().Done()
	batcher.Close(shutdownCtx)
	workers.Shutdown()

	log.Info().Msg("blog-notification stopped")
}
