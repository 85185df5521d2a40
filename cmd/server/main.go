package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bahsim/catalog-import-service/internal/config"
	"github.com/bahsim/catalog-import-service/internal/domain"
	"github.com/bahsim/catalog-import-service/internal/handler"
	"github.com/bahsim/catalog-import-service/internal/objectstore"
	"github.com/bahsim/catalog-import-service/internal/pubsub"
	"github.com/bahsim/catalog-import-service/internal/queue"
	"github.com/bahsim/catalog-import-service/internal/server"
	"github.com/bahsim/catalog-import-service/internal/service"
	"github.com/bahsim/catalog-import-service/internal/storage"
	"github.com/bahsim/catalog-import-service/pkg/logger"
	"github.com/bahsim/catalog-import-service/pkg/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet: required configuration is missing.
		panic(err)
	}

	log := logger.New(cfg.Logging.Level)
	defer log.Sync()

	ctx := context.Background()
	log.Info(ctx, "Starting application")

	store, err := objectstore.NewFSStore(cfg.Storage.DataDir, log)
	if err != nil {
		log.Fatal(ctx, "Failed to initialize object store",
			"error", err,
		)
	}
	log.Info(ctx, "Object store initialized",
		"data_dir", cfg.Storage.DataDir,
		"bucket", cfg.Storage.Bucket,
	)

	repo, cleanup := buildRepository(ctx, cfg, log)
	defer cleanup()
	log.Info(ctx, "Repository initialized")

	rowQueue := queue.New(log, &queue.Config{
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		MaxReceiveCount:   cfg.Queue.MaxReceiveCount,
		Capacity:          cfg.Queue.Buffer,
	})

	topic := pubsub.NewTopic(cfg.Topic.Name, log)
	subscribePriceAlerts(topic, cfg.Topic.PriceAlertMin, log)

	batchWriter := service.NewCatalogBatchWriter(repo, topic, log)
	consumer := queue.NewConsumer(rowQueue, batchWriter, log, &queue.ConsumerConfig{
		BatchSize: cfg.Queue.BatchSize,
		Workers:   cfg.Queue.Consumers,
	})
	if err := consumer.Start(ctx); err != nil {
		log.Fatal(ctx, "Failed to start queue consumer",
			"error", err,
		)
	}
	log.Info(ctx, "Queue consumer started",
		"batch_size", cfg.Queue.BatchSize,
		"workers", cfg.Queue.Consumers,
	)

	pipeline := service.NewCSVIngestPipeline(
		store,
		rowQueue,
		log,
		cfg.Storage.UploadFolder,
		cfg.Storage.ParsedFolder,
	)
	store.Subscribe(pipeline.Handle)
	log.Info(ctx, "Ingest pipeline subscribed to object store events")

	signer := objectstore.NewSigner(cfg.Import.SigningSecret, cfg.Server.PublicBaseURL)
	importService := service.NewImportService(
		store,
		signer,
		cfg.Storage.Bucket,
		cfg.Storage.UploadFolder,
		cfg.Import.URLExpiry,
		log,
	)
	productService := service.NewProductService(repo, topic, log)
	log.Info(ctx, "Services initialized")

	importHandler := handler.NewImportHandler(importService, log)
	productHandler := handler.NewProductHandler(productService, log)
	healthHandler := handler.NewHealthHandler()

	srv := server.New(cfg, log, importHandler, productHandler, healthHandler)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal(ctx, "Failed to start HTTP server",
				"error", err,
			)
		}
	}()

	log.Info(ctx, "Application started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info(ctx, "Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	// Graceful shutdown in order:
	// 1. Stop accepting new HTTP requests (no new uploads or creates)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "HTTP server shutdown error",
			"error", err,
		)
	}

	// 2. Drain the queue consumer so in-flight batches finish
	if err := consumer.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "Queue consumer shutdown error",
			"error", err,
		)
	}

	log.Info(ctx, "Application stopped gracefully")
}

// buildRepository picks the product repository from configuration:
// Postgres when PG_DSN is set, in-memory otherwise, with an optional Redis
// read cache layered on top.
func buildRepository(ctx context.Context, cfg *config.Config, log *logger.Logger) (domain.ProductRepository, func()) {
	var repo domain.ProductRepository
	var closers []func()

	if dsn := cfg.Database.PostgresDSN; dsn != "" {
		var pg *storage.PostgresStore
		err := retry.Do(ctx, func() error {
			var err error
			pg, err = storage.NewPostgresStore(ctx, dsn)
			return err
		}, retry.WithMaxAttempts(3), retry.WithBaseDelay(2*time.Second))
		if err != nil {
			log.Fatal(ctx, "Failed to connect to postgres",
				"error", err,
			)
		}
		closers = append(closers, func() { pg.Close() })
		repo = pg
		log.Info(ctx, "Using postgres product store")
	} else {
		repo = storage.NewMemoryStore()
		log.Info(ctx, "Using in-memory product store")
	}

	if addr := cfg.Database.RedisAddr; addr != "" {
		cache, err := storage.NewProductCache(ctx, addr)
		if err != nil {
			log.Fatal(ctx, "Failed to connect to redis",
				"error", err,
			)
		}
		closers = append(closers, func() { cache.Close() })
		repo = storage.NewCachedStore(repo, cache, log)
		log.Info(ctx, "Product cache enabled",
			"redis_addr", addr,
		)
	}

	return repo, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}

// subscribePriceAlerts registers a filtered subscriber that logs creation
// events whose price attribute clears the configured threshold, the same
// contract downstream topic subscribers rely on.
func subscribePriceAlerts(topic *pubsub.Topic, minPrice float64, log *logger.Logger) {
	policy := pubsub.FilterPolicy{
		"price": {Numeric: &pubsub.NumericRange{Min: &minPrice}},
	}

	topic.Subscribe(policy, func(ctx context.Context, message string, attrs pubsub.Attributes) error {
		log.Info(ctx, "High-value product created",
			"price", attrs["price"],
			"notification", message,
		)
		return nil
	})
}
