package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/groombook/libs/db"
	"github.com/md-rashed-zaman/groombook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/groombook/libs/otel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Metrics struct {
	Published prometheus.Counter
	Failures  prometheus.Counter
	Purged    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounter(prometheus.CounterOpts{
			Namespace: "groombook", Subsystem: "outbox", Name: "published_total",
			Help: "Change events handed to Kafka.",
		}),
		Failures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "groombook", Subsystem: "outbox", Name: "publish_failures_total",
			Help: "Batches that could not be delivered and were left for retry.",
		}),
		Purged: f.NewCounter(prometheus.CounterOpts{
			Namespace: "groombook", Subsystem: "outbox", Name: "purged_total",
			Help: "Delivered rows removed after the retention period.",
		}),
	}
}

type PublisherConfig struct {
	Brokers   []string
	PollEvery time.Duration
	BatchSize int
	// Retention is how long delivered rows are kept; zero keeps them forever.
	Retention  time.Duration
	PurgeEvery time.Duration
	Metrics    *Metrics
}

type Publisher struct {
	pool    *db.Pool
	repo    *Repository
	logger  *slog.Logger
	cfg     PublisherConfig
	metrics *Metrics
	tracer  trace.Tracer
}

func NewPublisher(pool *db.Pool, repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 500 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PurgeEvery <= 0 {
		cfg.PurgeEvery = time.Hour
	}
	m := cfg.Metrics
	if m == nil {
		m = NewMetrics(prometheus.NewRegistry())
	}
	return &Publisher{pool: pool, repo: repo, logger: logger, cfg: cfg, metrics: m, tracer: otelx.Tracer("outbox")}
}

// Run polls the outbox until ctx ends. After a failed batch the next poll
// is delayed with exponential backoff, capped at 30s.
func (p *Publisher) Run(ctx context.Context) {
	if len(p.cfg.Brokers) == 0 {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(p.cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = p.cfg.PollEvery
	retry.MaxInterval = 30 * time.Second

	wait := p.cfg.PollEvery
	lastPurge := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if err := p.publishBatch(ctx, writer); err != nil {
			wait = retry.NextBackOff()
			p.logger.Error("outbox publish failed", "err", err, "retry_in", wait)
		} else {
			retry.Reset()
			wait = p.cfg.PollEvery
		}

		if p.cfg.Retention > 0 && time.Since(lastPurge) >= p.cfg.PurgeEvery {
			lastPurge = time.Now()
			p.purge(ctx)
		}
	}
}

func (p *Publisher) publishBatch(ctx context.Context, writer MessageWriter) error {
	var claimed []int64
	err := p.pool.InTx(ctx, func(tx pgx.Tx) error {
		records, err := p.repo.ClaimBatch(ctx, tx, p.cfg.BatchSize)
		if err != nil || len(records) == 0 {
			return err
		}
		claimed = ids(records)
		if err := p.deliver(ctx, writer, records); err != nil {
			return err
		}
		return p.repo.MarkPublished(ctx, tx, claimed)
	})
	if err != nil && len(claimed) > 0 && ctx.Err() == nil {
		p.metrics.Failures.Inc()
		if markErr := p.repo.MarkFailed(ctx, p.pool, claimed, err); markErr != nil {
			p.logger.Warn("outbox failure bookkeeping", "err", markErr)
		}
	}
	return err
}

// deliver writes records as one batch. Each message gets a producer span
// parented on the request that staged it.
func (p *Publisher) deliver(ctx context.Context, writer MessageWriter, records []Record) error {
	msgs := make([]kafka.Message, len(records))
	spans := make([]trace.Span, len(records))
	for i, r := range records {
		msgs[i] = Message(r)
		_, spans[i] = kafkax.StartProduce(r.Trace.Context(ctx), p.tracer, &msgs[i])
	}
	err := writer.WriteMessages(ctx, msgs...)
	for _, span := range spans {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
	if err != nil {
		return err
	}
	p.metrics.Published.Add(float64(len(msgs)))
	return nil
}

func (p *Publisher) purge(ctx context.Context) {
	n, err := p.repo.PurgePublished(ctx, p.pool, time.Now().Add(-p.cfg.Retention))
	if err != nil {
		p.logger.Warn("outbox purge failed", "err", err)
		return
	}
	p.metrics.Purged.Add(float64(n))
	if n > 0 {
		p.logger.Info("outbox purged", "rows", n)
	}
}

func ids(records []Record) []int64 {
	out := make([]int64, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

// Message builds the Kafka message for an outbox record. Keying by aggregate
// keeps changes to one row on one partition.
func Message(r Record) kafka.Message {
	return kafka.Message{
		Topic: r.Topic,
		Key:   []byte(r.AggregateID),
		Value: r.Payload,
		Headers: kafkax.EventMeta{
			EventID:    r.EventID,
			Table:      r.AggregateType,
			OccurredAt: r.CreatedAt,
		}.Headers(),
	}
}
