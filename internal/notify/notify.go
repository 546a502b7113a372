// Package notify carries feed refresh events over Kafka. The worker publishes
// one after archiving a changed snapshot and API instances reload on receipt.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/devotion-feed/internal/logger"
)

// RefreshEvent announces a newly archived snapshot.
type RefreshEvent struct {
	SnapshotID string    `json:"snapshot_id"`
	Digest     string    `json:"digest"`
	Sessions   int       `json:"sessions"`
	LoadedAt   time.Time `json:"loaded_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher writes refresh events, retrying with exponential backoff.
type Publisher struct {
	w        messageWriter
	attempts int
	backoff  time.Duration
	log      *slog.Logger
}

// NewPublisher wraps w. attempts below one are treated as one.
func NewPublisher(w messageWriter, attempts int, log *slog.Logger) *Publisher {
	if attempts <= 0 {
		attempts = 1
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Publisher{w: w, attempts: attempts, backoff: time.Second, log: log}
}

// NewWriter builds the Kafka writer for the refresh topic.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// Publish writes ev keyed by its digest.
func (p *Publisher) Publish(ctx context.Context, ev RefreshEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal refresh event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.Digest),
		Value: value,
		Headers: []kafka.Header{
			{Key: "snapshot_id", Value: []byte(ev.SnapshotID)},
			{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	}

	var lastErr error
	for attempt := 0; attempt < p.attempts; attempt++ {
		if lastErr = p.w.WriteMessages(ctx, msg); lastErr == nil {
			return nil
		}
		if attempt == p.attempts-1 {
			break
		}

		backoff := p.backoff * time.Duration(1<<uint(attempt))
		p.log.Warn("refresh event write failed, retrying",
			slog.Any("err", lastErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("publish refresh event after %d attempts: %w", p.attempts, lastErr)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewReader builds a consumer-group reader for the refresh topic.
func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        group,
		MinBytes:       1,
		MaxBytes:       1e6,
		StartOffset:    kafka.LastOffset,
		CommitInterval: 0,
	})
}

// Consume calls handle for every refresh event until ctx is done. Undecodable
// messages are logged and committed so they are not redelivered.
func Consume(ctx context.Context, r messageReader, log *slog.Logger, handle func(RefreshEvent)) error {
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			log.Error("fetch refresh event", slog.Any("err", err))
			select {
			case <-time.After(time.Second):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		var ev RefreshEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			log.Warn("drop undecodable refresh event",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)
		} else {
			handle(ev)
		}

		if err := r.CommitMessages(ctx, msg); err != nil {
			log.Error("commit refresh event", slog.Any("err", err))
		}
	}
}
