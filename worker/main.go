package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/DeafMist/devotion-feed/internal/config"
	"github.com/DeafMist/devotion-feed/internal/dedupe"
	"github.com/DeafMist/devotion-feed/internal/elasticsearch"
	"github.com/DeafMist/devotion-feed/internal/feed"
	"github.com/DeafMist/devotion-feed/internal/logger"
	"github.com/DeafMist/devotion-feed/internal/models"
	"github.com/DeafMist/devotion-feed/internal/notify"
	"github.com/DeafMist/devotion-feed/internal/processing"
)

type feedLoader interface {
	Load(ctx context.Context) (feed.Result, error)
}

type snapshotArchive interface {
	IndexSnapshot(ctx context.Context, snapshotID string, loadedAt time.Time, sessions []models.Session) error
	DeleteSuperseded(ctx context.Context, keepSnapshot string, batchSize int) (int64, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, ev notify.RefreshEvent) error
}

// outcome reports what one sync pass did.
type outcome string

const (
	outcomeArchived  outcome = "archived"
	outcomeUnchanged outcome = "unchanged"
	outcomeFallback  outcome = "fallback"
)

const deleteBatchSize = 500

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	if cfg.URL == "" {
		log.Warn("SESSIONS_FEED_URL is empty, nothing will be archived")
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := esClient.EnsureIndex(ctx); err != nil {
		log.Error("ensure archive index", slog.Any("err", err))
		os.Exit(1)
	}

	writer := notify.NewWriter(cfg.Brokers, cfg.RefreshTopic)
	defer writer.Close()

	loader := feed.NewLoader(feed.Options{
		URL:           cfg.URL,
		Timeout:       cfg.FetchTimeout,
		FallbackDelay: cfg.FallbackDelay,
		Logger:        log,
	})
	publisher := notify.NewPublisher(writer, cfg.PublishAttempts, log)
	cache := dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL)

	log.Info("worker started",
		slog.String("topic", cfg.RefreshTopic),
		slog.Duration("interval", cfg.RefreshInterval),
	)

	ticker := time.NewTicker(cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		if _, err := syncOnce(ctx, log, loader, esClient, publisher, cache); err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Warn("sync failed (will retry on next interval)", slog.Any("err", err))
		}

		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
		}
	}
}

// syncOnce loads the feed and, when the live content changed, archives it as
// a new snapshot and announces it.
func syncOnce(ctx context.Context, log *slog.Logger, loader feedLoader, archive snapshotArchive, pub eventPublisher, cache *dedupe.Cache) (outcome, error) {
	res, err := loader.Load(ctx)
	if err != nil {
		return "", err
	}

	if res.Source != feed.SourceLive {
		log.Debug("feed served fallback, skipping archive")
		return outcomeFallback, nil
	}

	digest := processing.SnapshotDigest(res.Sessions)
	if archivedAs, ok := cache.Seen(digest); ok {
		log.Debug("feed unchanged",
			slog.String("digest", digest),
			slog.String("snapshot_id", archivedAs),
		)
		return outcomeUnchanged, nil
	}

	snapshotID := uuid.NewString()
	if err := archive.IndexSnapshot(ctx, snapshotID, res.LoadedAt, res.Sessions); err != nil {
		return "", err
	}

	deleted, err := archive.DeleteSuperseded(ctx, snapshotID, deleteBatchSize)
	if err != nil {
		// retention removes the leftovers later
		log.Warn("delete superseded snapshots", slog.Any("err", err))
	}

	ev := notify.RefreshEvent{
		SnapshotID: snapshotID,
		Digest:     digest,
		Sessions:   len(res.Sessions),
		LoadedAt:   res.LoadedAt,
	}
	if err := pub.Publish(ctx, ev); err != nil {
		return "", err
	}

	cache.Mark(digest, snapshotID)
	log.Info("archived snapshot",
		slog.String("snapshot_id", snapshotID),
		slog.Int("sessions", len(res.Sessions)),
		slog.Int64("superseded_deleted", deleted),
	)
	return outcomeArchived, nil
}
