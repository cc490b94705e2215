package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/inventory-app/glossary-sync/pkg/config"
	"github.com/inventory-app/glossary-sync/pkg/database"
	"github.com/inventory-app/glossary-sync/pkg/observability/metrics"
	"github.com/inventory-app/glossary-sync/pkg/repositories"
	"github.com/inventory-app/glossary-sync/pkg/services"
	"github.com/inventory-app/glossary-sync/pkg/services/workqueue"
	"github.com/inventory-app/glossary-sync/pkg/textmatch"
)

const uniqueLockPrefix = "glossary-sync:unique:"

// app holds the long-lived components shared by the worker and resync commands.
type app struct {
	db         *database.DB
	redis      *redis.Client
	registry   *prometheus.Registry
	metrics    *metrics.SyncMetrics
	queue      *workqueue.Queue
	dispatcher *services.SyncDispatcher
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.URL(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return nil, err
	}
	a := &app{db: db}

	if cfg.Database.MigrateOnStart {
		if err := migrateUp(cfg, logger); err != nil {
			a.close(logger)
			return nil, err
		}
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics, err = metrics.NewSyncMetrics(a.registry)
	if err != nil {
		a.close(logger)
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	queueOpts := []workqueue.QueueOption{
		workqueue.WithStrategy(workqueue.NewThrottledStrategy(cfg.Queue.Concurrency)),
		workqueue.WithRetryConfig(workqueue.RetryConfig{
			MaxRetries:     cfg.Queue.MaxRetries,
			InitialBackoff: workqueue.DefaultRetryConfig().InitialBackoff,
			MaxBackoff:     workqueue.DefaultRetryConfig().MaxBackoff,
			BackoffFactor:  workqueue.DefaultRetryConfig().BackoffFactor,
		}),
		workqueue.WithRetention(cfg.Queue.Retention),
		workqueue.WithObserver(a.metrics),
	}

	a.redis, err = database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		a.close(logger)
		return nil, err
	}
	if a.redis != nil {
		logger.Info("Cross-process unique lock enabled", zap.String("redis", cfg.Redis.Addr()))
		queueOpts = append(queueOpts, workqueue.WithUniqueLock(
			workqueue.NewRedisUniqueLock(a.redis, uniqueLockPrefix, cfg.Queue.UniqueLockTTL)))
	}

	a.queue = workqueue.New(logger, queueOpts...)

	tx := database.NewScopeProvider(db)
	worker := services.NewSyncWorker(
		tx,
		repositories.NewItemTranslationRepository(),
		repositories.NewSpellingRepository(),
		repositories.NewSpellingLinkRepository(),
		textmatch.NewMatcher(cfg.Sync.PatternCacheTTL),
		logger,
		services.WithChunkSize(cfg.Sync.ChunkSize),
		services.WithSyncRecorder(a.metrics),
	)
	a.dispatcher = services.NewSyncDispatcher(a.queue, worker, tx, repositories.NewSpellingRepository(), logger)

	return a, nil
}

// shutdown drains the queue, then releases connections.
func (a *app) shutdown(ctx context.Context, logger *zap.Logger) {
	if a.queue != nil {
		if err := a.queue.Shutdown(ctx); err != nil {
			logger.Warn("Queue did not drain before shutdown deadline", zap.Error(err))
		}
	}
	a.close(logger)
}

func (a *app) close(logger *zap.Logger) {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Warn("Failed to close Redis client", zap.Error(err))
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
