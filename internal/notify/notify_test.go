package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/devotion-feed/internal/logger"
)

type flakyWriter struct {
	failures int
	written  []kafka.Message
}

func (w *flakyWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.failures > 0 {
		w.failures--
		return errors.New("broker unavailable")
	}
	w.written = append(w.written, msgs...)
	return nil
}

func TestPublishRetries(t *testing.T) {
	w := &flakyWriter{failures: 2}
	p := NewPublisher(w, 3, logger.Discard())
	p.backoff = time.Millisecond

	ev := RefreshEvent{SnapshotID: "snap", Digest: "abc", Sessions: 4, LoadedAt: time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, p.Publish(context.Background(), ev))
	require.Len(t, w.written, 1)
	require.Equal(t, "abc", string(w.written[0].Key))

	var got RefreshEvent
	require.NoError(t, json.Unmarshal(w.written[0].Value, &got))
	require.Equal(t, ev, got)
}

func TestPublishGivesUp(t *testing.T) {
	w := &flakyWriter{failures: 5}
	p := NewPublisher(w, 2, logger.Discard())
	p.backoff = time.Millisecond

	err := p.Publish(context.Background(), RefreshEvent{Digest: "abc"})
	require.Error(t, err)
	require.Empty(t, w.written)
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []kafka.Message
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func TestConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	good, err := json.Marshal(RefreshEvent{SnapshotID: "snap", Sessions: 2})
	require.NoError(t, err)
	r := &fakeReader{
		msgs:   []kafka.Message{{Value: []byte("{broken")}, {Value: good}},
		cancel: cancel,
	}

	var events []RefreshEvent
	require.NoError(t, Consume(ctx, r, logger.Discard(), func(ev RefreshEvent) {
		events = append(events, ev)
	}))

	require.Len(t, events, 1)
	require.Equal(t, "snap", events[0].SnapshotID)
	require.Len(t, r.committed, 2)
}
