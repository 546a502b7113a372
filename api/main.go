package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DeafMist/devotion-feed/internal/config"
	"github.com/DeafMist/devotion-feed/internal/elasticsearch"
	"github.com/DeafMist/devotion-feed/internal/feed"
	"github.com/DeafMist/devotion-feed/internal/logger"
	"github.com/DeafMist/devotion-feed/internal/notify"
)

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	loader := feed.NewLoader(feed.Options{
		URL:           cfg.URL,
		Timeout:       cfg.FetchTimeout,
		FallbackDelay: cfg.FallbackDelay,
		Logger:        log,
	})
	store := feed.NewStore(loader, log)

	srv := &server{log: log, cfg: cfg, store: store, reloadCtx: ctx}
	if cfg.ArchiveEnabled {
		esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
		if err != nil {
			log.Error("init elasticsearch", slog.Any("err", err))
			os.Exit(1)
		}
		srv.archive = esClient
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           newRouter(srv),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return store.Run(gctx, cfg.RefreshInterval)
	})

	if cfg.KafkaEnabled {
		reader := notify.NewReader(cfg.Brokers, cfg.RefreshTopic, cfg.ConsumerGroup)
		defer reader.Close()

		g.Go(func() error {
			return notify.Consume(gctx, reader, log, func(ev notify.RefreshEvent) {
				log.Info("refresh event received",
					slog.String("snapshot_id", ev.SnapshotID),
					slog.Int("sessions", ev.Sessions),
				)
				store.Reload(gctx)
			})
		})
	}

	g.Go(func() error {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", slog.Any("err", err))
		os.Exit(1)
	}
}
