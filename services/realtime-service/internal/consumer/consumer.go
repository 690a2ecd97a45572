package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/groombook/libs/changefeed"
	"github.com/md-rashed-zaman/groombook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/groombook/libs/otel"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const readRetryDelay = time.Second

type Handler func(ctx context.Context, msg kafka.Message) error

// MessageReader is the part of *kafka.Reader the loop uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	reader  MessageReader
	logger  *slog.Logger
	handler Handler
	tracer  trace.Tracer
}

type Config struct {
	Brokers []string
	GroupID string
	Topics  []string
}

// New reads from the latest offset: a relay has no use for history, clients
// reload on reconnect.
func New(logger *slog.Logger, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return NewWithReader(logger, reader, handler)
}

func NewWithReader(logger *slog.Logger, reader MessageReader, handler Handler) *Consumer {
	return &Consumer{reader: reader, logger: logger, handler: handler, tracer: otelx.Tracer("realtime-relay")}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			if !wait(ctx, readRetryDelay) {
				return
			}
			continue
		}

		ctxSpan, span := kafkax.StartConsume(ctx, c.tracer, msg)
		meta := kafkax.MetaFrom(msg)
		if err := c.handler(ctxSpan, msg); err != nil {
			c.logger.Error("handler error", "err", err, "event_id", meta.EventID, "topic", msg.Topic)
			span.RecordError(err)
			span.SetStatus(codes.Error, "handler failed")
		} else if !meta.OccurredAt.IsZero() {
			c.logger.Debug("change handled", "event_id", meta.EventID, "lag", time.Since(meta.OccurredAt))
		}
		span.End()
	}
}

// Publisher is the hub side of the relay.
type Publisher interface {
	Publish(table string, scopes []changefeed.Scope, change json.RawMessage) int
}

// Relay validates each change event and hands it to pub for fan-out.
// Malformed events are reported and skipped.
func Relay(pub Publisher, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		table := kafkax.MetaFrom(msg).Table
		if table == "" {
			var ok bool
			if table, ok = changefeed.TableForTopic(msg.Topic); !ok {
				return fmt.Errorf("unexpected topic %q", msg.Topic)
			}
		}
		scopes, err := changefeed.Route(table, msg.Value)
		if err != nil {
			return fmt.Errorf("route %s change: %w", table, err)
		}
		n := pub.Publish(table, scopes, msg.Value)
		logger.Debug("change relayed", "table", table, "scopes", len(scopes), "frames", n)
		return nil
	}
}

// wait pauses for d and reports false if ctx ends first.
func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
