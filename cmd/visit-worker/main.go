package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gamassss/shortlink/internal/config"
	"github.com/gamassss/shortlink/internal/logger"
	"github.com/gamassss/shortlink/internal/queue"
	"github.com/gamassss/shortlink/internal/repository/postgres"
	"github.com/gamassss/shortlink/internal/repository/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	if err := logger.Initialize(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, closeSink, err := setupSink(ctx, cfg)
	if err != nil {
		log.Error("Failed to setup database", "error", err)
		os.Exit(1)
	}
	defer closeSink()

	broker, err := queue.Dial(cfg.Visits.AMQPURL, cfg.Visits.Queue)
	if err != nil {
		log.Error("Failed to setup rabbitmq", "error", err)
		os.Exit(1)
	}
	defer broker.Close()

	deliveries, err := broker.Consume(cfg.Visits.BatchSize)
	if err != nil {
		log.Error("Failed to register consumer", "error", err)
		os.Exit(1)
	}

	log.Info("Visit worker started",
		"queue", cfg.Visits.Queue,
		"batch_size", cfg.Visits.BatchSize,
		"flush_interval", cfg.Visits.FlushInterval,
	)

	consumer := queue.NewConsumer(sink, cfg.Visits.BatchSize, cfg.Visits.FlushInterval)
	if err := consumer.Run(ctx, deliveries); err != nil {
		if errors.Is(err, queue.ErrDeliveriesClosed) {
			log.Error("RabbitMQ closed the delivery channel")
			os.Exit(1)
		}
		log.Error("Visit worker failed", "error", err)
		os.Exit(1)
	}

	log.Info("Visit worker stopped")
}

func setupSink(ctx context.Context, cfg *config.Config) (queue.BatchSink, func(), error) {
	switch cfg.Database.Driver {
	case "sqlite":
		store, err := sqlite.Open(cfg.Database.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil

	case "postgres":
		poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			return nil, nil, err
		}
		poolConfig.MaxConns = int32(cfg.Database.MaxConns)
		poolConfig.MinConns = int32(cfg.Database.MinConns)

		dbPool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, dbPool); err != nil {
			dbPool.Close()
			return nil, nil, fmt.Errorf("failed to migrate: %w", err)
		}
		return postgres.NewVisitRepository(dbPool), dbPool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.Database.Driver)
	}
}
