package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	otelx "github.com/md-rashed-zaman/groombook/libs/otel"
)

// Execer is satisfied by pgx.Tx and *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Insert stages evt inside tx together with the caller's span context, so the
// change reaches Kafka only if tx commits.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	carrier := otelx.CarrierFrom(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, topic, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
	`, evt.AggregateType, evt.AggregateID, evt.Topic, evt.Payload, carrier.Traceparent, carrier.Tracestate)
	return err
}

// Record is a staged event awaiting delivery.
type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	Topic         string
	Payload       []byte
	Trace         otelx.Carrier
	Attempts      int
	CreatedAt     time.Time
}

// ClaimBatch locks up to limit undelivered rows in insertion order. Rows
// claimed by another publisher are skipped, so replicas can poll together.
func (r *Repository) ClaimBatch(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id::text, aggregate_type, aggregate_id, topic, payload,
			COALESCE(traceparent, ''), COALESCE(tracestate, ''), attempts, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var rec Record
		err := row.Scan(&rec.ID, &rec.EventID, &rec.AggregateType, &rec.AggregateID, &rec.Topic, &rec.Payload,
			&rec.Trace.Traceparent, &rec.Trace.Tracestate, &rec.Attempts, &rec.CreatedAt)
		return rec, err
	})
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `UPDATE outbox_events SET published_at = now(), last_error = NULL WHERE id = ANY($1)`, ids)
	return err
}

// MarkFailed bumps the attempt counter of ids and keeps the latest error for
// operators. It runs outside the claiming transaction, which rolls back.
func (r *Repository) MarkFailed(ctx context.Context, db Execer, ids []int64, cause error) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.Exec(ctx, `
		UPDATE outbox_events
		SET attempts = attempts + 1, last_error = left($2, 1000)
		WHERE id = ANY($1) AND published_at IS NULL
	`, ids, cause.Error())
	return err
}

// PurgePublished deletes delivered rows older than cutoff and reports how
// many went.
func (r *Repository) PurgePublished(ctx context.Context, db Execer, cutoff time.Time) (int64, error) {
	tag, err := db.Exec(ctx, `DELETE FROM outbox_events WHERE published_at IS NOT NULL AND published_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
