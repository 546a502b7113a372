package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/devotion-feed/internal/dedupe"
	"github.com/DeafMist/devotion-feed/internal/feed"
	"github.com/DeafMist/devotion-feed/internal/logger"
	"github.com/DeafMist/devotion-feed/internal/models"
	"github.com/DeafMist/devotion-feed/internal/notify"
)

type stubLoader struct {
	res feed.Result
	err error
}

func (s *stubLoader) Load(context.Context) (feed.Result, error) {
	return s.res, s.err
}

type stubArchive struct {
	snapshots map[string][]models.Session
	kept      []string
	indexErr  error
}

func (s *stubArchive) IndexSnapshot(_ context.Context, snapshotID string, _ time.Time, sessions []models.Session) error {
	if s.indexErr != nil {
		return s.indexErr
	}
	if s.snapshots == nil {
		s.snapshots = map[string][]models.Session{}
	}
	s.snapshots[snapshotID] = sessions
	return nil
}

func (s *stubArchive) DeleteSuperseded(_ context.Context, keep string, _ int) (int64, error) {
	s.kept = append(s.kept, keep)
	return 0, nil
}

type stubPublisher struct {
	events []notify.RefreshEvent
	err    error
}

func (s *stubPublisher) Publish(_ context.Context, ev notify.RefreshEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func liveResult(titles ...string) feed.Result {
	sessions := make([]models.Session, 0, len(titles))
	for i, title := range titles {
		sessions = append(sessions, models.Session{ID: string(rune('0' + i)), Date: "2024-05-01", Title: title})
	}
	return feed.Result{Sessions: sessions, Source: feed.SourceLive, LoadedAt: time.Now().UTC()}
}

func TestSyncOnceArchivesAndPublishes(t *testing.T) {
	loader := &stubLoader{res: liveResult("Faith", "Hope")}
	archive := &stubArchive{}
	pub := &stubPublisher{}
	cache := dedupe.NewCache(10, time.Hour)

	got, err := syncOnce(context.Background(), logger.Discard(), loader, archive, pub, cache)
	require.NoError(t, err)
	require.Equal(t, outcomeArchived, got)

	require.Len(t, archive.snapshots, 1)
	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	require.Equal(t, 2, ev.Sessions)
	require.Contains(t, archive.snapshots, ev.SnapshotID)
	require.Equal(t, []string{ev.SnapshotID}, archive.kept)

	archivedAs, ok := cache.Seen(ev.Digest)
	require.True(t, ok)
	require.Equal(t, ev.SnapshotID, archivedAs)

	got, err = syncOnce(context.Background(), logger.Discard(), loader, archive, pub, cache)
	require.NoError(t, err)
	require.Equal(t, outcomeUnchanged, got)
	require.Len(t, pub.events, 1)

	loader.res = liveResult("Faith", "Hope", "Love")
	got, err = syncOnce(context.Background(), logger.Discard(), loader, archive, pub, cache)
	require.NoError(t, err)
	require.Equal(t, outcomeArchived, got)
	require.Len(t, pub.events, 2)
	require.NotEqual(t, pub.events[0].SnapshotID, pub.events[1].SnapshotID)
}

func TestSyncOnceSkipsFallback(t *testing.T) {
	loader := &stubLoader{res: feed.Result{Sessions: feed.Fallback(), Source: feed.SourceFallback}}
	archive := &stubArchive{}
	pub := &stubPublisher{}

	got, err := syncOnce(context.Background(), logger.Discard(), loader, archive, pub, dedupe.NewCache(10, time.Hour))
	require.NoError(t, err)
	require.Equal(t, outcomeFallback, got)
	require.Empty(t, archive.snapshots)
	require.Empty(t, pub.events)
}

func TestSyncOnceMalformedFeed(t *testing.T) {
	loader := &stubLoader{err: feed.ErrMalformedFeed}

	_, err := syncOnce(context.Background(), logger.Discard(), loader, &stubArchive{}, &stubPublisher{}, dedupe.NewCache(10, time.Hour))
	require.ErrorIs(t, err, feed.ErrMalformedFeed)
}

func TestSyncOnceRetriesAfterPublishFailure(t *testing.T) {
	loader := &stubLoader{res: liveResult("Faith")}
	archive := &stubArchive{}
	pub := &stubPublisher{err: errors.New("broker down")}
	cache := dedupe.NewCache(10, time.Hour)

	_, err := syncOnce(context.Background(), logger.Discard(), loader, archive, pub, cache)
	require.Error(t, err)
	require.Zero(t, cache.Len())

	pub.err = nil
	got, err := syncOnce(context.Background(), logger.Discard(), loader, archive, pub, cache)
	require.NoError(t, err)
	require.Equal(t, outcomeArchived, got)
	require.Len(t, pub.events, 1)
}

func TestSyncOnceIndexFailure(t *testing.T) {
	loader := &stubLoader{res: liveResult("Faith")}
	archive := &stubArchive{indexErr: errors.New("es down")}
	pub := &stubPublisher{}

	_, err := syncOnce(context.Background(), logger.Discard(), loader, archive, pub, dedupe.NewCache(10, time.Hour))
	require.Error(t, err)
	require.Empty(t, pub.events)
}
