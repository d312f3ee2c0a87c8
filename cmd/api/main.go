package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gamassss/shortlink/internal/config"
	"github.com/gamassss/shortlink/internal/geo"
	"github.com/gamassss/shortlink/internal/handler"
	"github.com/gamassss/shortlink/internal/liveness"
	"github.com/gamassss/shortlink/internal/logger"
	"github.com/gamassss/shortlink/internal/middleware"
	"github.com/gamassss/shortlink/internal/queue"
	"github.com/gamassss/shortlink/internal/repository/postgres"
	redisRepo "github.com/gamassss/shortlink/internal/repository/redis"
	"github.com/gamassss/shortlink/internal/repository/sqlite"
	"github.com/gamassss/shortlink/internal/service"
	"github.com/gamassss/shortlink/internal/visit"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const version = "1.0.0"

// storage is the persistence backend picked by DB_DRIVER.
type storage struct {
	links  service.LinkStore
	stats  service.StatsRepository
	visits visit.Sink
	ping   handler.Pinger
	close  func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	loggerConfig := logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}

	if err := logger.Initialize(loggerConfig); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	log := logger.Get()
	log.Info("Starting shortlink service",
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
		"db_driver", cfg.Database.Driver,
		"visits_sink", cfg.Visits.Sink,
		"log_level", cfg.Log.Level,
	)

	ctx := context.Background()

	store, err := setupStorage(ctx, cfg)
	if err != nil {
		log.Error("Failed to setup database", "error", err)
		os.Exit(1)
	}
	defer store.close()

	checks := map[string]handler.Pinger{"database": store.ping}

	var cache service.CacheRepository
	if cfg.Redis.Enabled {
		redisClient, err := setupRedis(cfg)
		if err != nil {
			log.Error("Failed to setup redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		cache = redisRepo.NewLinkCache(redisClient)
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	sink := store.visits
	if cfg.Visits.Sink == "amqp" {
		broker, err := queue.Dial(cfg.Visits.AMQPURL, cfg.Visits.Queue)
		if err != nil {
			log.Error("Failed to setup rabbitmq", "error", err)
			os.Exit(1)
		}
		defer broker.Close()

		sink = broker.Publisher()
		checks["amqp"] = broker
	}

	var checker service.LivenessChecker = liveness.Nop{}
	if cfg.Shortener.LivenessEnabled {
		checker = liveness.NewChecker(cfg.Shortener.LivenessTimeout)
	}

	var resolver visit.GeoResolver = geo.Nop{}
	if cfg.GeoIP.DBPath != "" {
		geoDB, err := geo.Open(cfg.GeoIP.DBPath)
		if err != nil {
			log.Error("Failed to open geoip database", "path", cfg.GeoIP.DBPath, "error", err)
			os.Exit(1)
		}
		defer geoDB.Close()
		resolver = geoDB
	} else {
		log.Warn("GEOIP_DB_PATH not set, visits are stored without location")
	}

	shortenerService := service.NewShortenerService(store.links, cache, store.stats, checker, service.Options{
		SelfHost:     cfg.Server.Host,
		MinKeyLength: cfg.Shortener.MinKeyLength,
		MaxKeyLength: cfg.Shortener.MaxKeyLength,
		MaxRetries:   cfg.Shortener.MaxRetries,
		QueryTimeout: cfg.Database.QueryTimeout,
		CacheTTL:     cfg.Redis.CacheTTL,
	})

	recorder := visit.NewRecorder(resolver, sink, visit.Options{
		IPHeader: cfg.Visits.IPHeader,
		Debug:    cfg.Server.Debug,
		DebugIP:  cfg.Visits.DebugIP,
		Timeout:  cfg.Visits.RecordTimeout,
	})

	shortenerHandler := handler.NewShortenerHandler(shortenerService, recorder, cfg.Server.BaseURL)
	linkHandler := handler.NewLinkHandler(shortenerService, cfg.Server.BaseURL)
	healthHandler := handler.NewHealthHandler(version, checks)

	router := setupRouter(cfg.Server.Debug, shortenerHandler, linkHandler, healthHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("Server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	gracefulShutdown(srv, cfg.Server.ShutdownTimeout, log, recorder, shortenerService)
}

func setupStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		store, err := sqlite.Open(cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &storage{
			links:  store,
			stats:  store,
			visits: store,
			ping:   store,
			close:  func() { store.Close() },
		}, nil

	case "postgres":
		dbPool, err := setupDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, dbPool); err != nil {
			dbPool.Close()
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}

		visits := postgres.NewVisitRepository(dbPool)
		return &storage{
			links:  postgres.NewLinkRepository(dbPool),
			stats:  visits,
			visits: visits,
			ping:   dbPool,
			close:  dbPool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.Database.Driver)
	}
}

func setupDatabase(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	dbConfig := cfg.Database
	poolConfig, err := pgxpool.ParseConfig(dbConfig.URL)
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = int32(dbConfig.MaxConns)
	poolConfig.MinConns = int32(dbConfig.MinConns)
	poolConfig.MaxConnLifetime = dbConfig.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = dbConfig.MaxConnIdleTime

	dbPool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}

	if err := dbPool.Ping(ctx); err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return dbPool, nil
}

func setupRedis(cfg *config.Config) (*redis.Client, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
	})

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return redisClient, nil
}

func setupRouter(
	debug bool,
	shortenerHandler *handler.ShortenerHandler,
	linkHandler *handler.LinkHandler,
	healthHandler *handler.HealthHandler,
) *gin.Engine {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.Metrics())

	// health check
	router.GET("/healthz", healthHandler.Healthz)
	router.GET("/readyz", healthHandler.Readyz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/", shortenerHandler.ShortenForm)

	api := router.Group("/api")
	{
		api.POST("/shorten", shortenerHandler.ShortenJSON)

		api.GET("/links/:shortKey", linkHandler.GetLink)
		api.GET("/links/:shortKey/stats", linkHandler.GetStats)
	}

	router.GET("/:shortKey", shortenerHandler.Redirect)

	return router
}

// waiter is background work that must finish before its backends are closed.
type waiter interface {
	Wait()
}

func gracefulShutdown(srv *http.Server, timeout time.Duration, log *slog.Logger, pending ...waiter) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info("Shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Forced shutdown", "error", err)
	}

	done := make(chan struct{})
	go func() {
		for _, w := range pending {
			w.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("Pending visits and cache writes finished")
	case <-ctx.Done():
		log.Warn("Gave up waiting for pending background work")
	}

	log.Info("Graceful shutdown completed")
}
