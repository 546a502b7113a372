package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/devotion-feed/internal/config"
	"github.com/DeafMist/devotion-feed/internal/elasticsearch"
	"github.com/DeafMist/devotion-feed/internal/logger"
)

const (
	maxConnectAttempts = 10
	maxRetryDelay      = 30 * time.Second
)

type archivePruner interface {
	LatestSnapshot(ctx context.Context) (string, error)
	DeleteOlderThan(ctx context.Context, maxAge time.Duration, keepSnapshot string, batchSize int) (int64, error)
}

func main() {
	log := logger.New("retention")
	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	esClient, err := connect(ctx, log, cfg)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("shutdown signal received during startup")
			return
		}
		log.Error("failed to connect to elasticsearch after retries", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("connected to elasticsearch")

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info("retention job running",
		slog.Duration("interval", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge),
	)

	runOnce(ctx, log, esClient, cfg)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(ctx, log, esClient, cfg)
		}
	}
}

// connect retries the Elasticsearch connection with exponential backoff.
func connect(ctx context.Context, log *slog.Logger, cfg *config.Retention) (*elasticsearch.Client, error) {
	retryDelay := 2 * time.Second
	var lastErr error

	for attempt := 0; attempt < maxConnectAttempts; attempt++ {
		esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = esClient.Ping(pingCtx)
			cancel()
			if err == nil {
				return esClient, nil
			}
		}
		lastErr = err

		log.Warn("elasticsearch not ready, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", maxConnectAttempts),
			slog.Duration("retry_in", retryDelay),
		)

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		retryDelay = min(retryDelay*2, maxRetryDelay)
	}

	return nil, lastErr
}

// runOnce prunes archive documents older than the configured age, never
// touching the newest snapshot.
func runOnce(ctx context.Context, log *slog.Logger, archive archivePruner, cfg *config.Retention) int64 {
	subCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	latest, err := archive.LatestSnapshot(subCtx)
	if err != nil {
		log.Warn("retention run failed (will retry on next interval)", slog.Any("err", err))
		return 0
	}
	if latest == "" {
		log.Debug("retention run skipped, archive is empty")
		return 0
	}

	deleted, err := archive.DeleteOlderThan(subCtx, cfg.MaxAge, latest, cfg.BatchSize)
	if err != nil {
		log.Warn("retention run failed (will retry on next interval)", slog.Any("err", err))
		return deleted
	}

	if deleted > 0 {
		log.Info("retention run completed", slog.Int64("deleted", deleted), slog.String("kept_snapshot", latest))
	} else {
		log.Debug("retention run completed, no old documents found")
	}
	return deleted
}
