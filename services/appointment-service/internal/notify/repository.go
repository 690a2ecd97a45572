package notify

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/groombook/libs/changefeed"
	"github.com/md-rashed-zaman/groombook/libs/db"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/outbox"
)

const notificationColumns = `id::text, recipient_id::text, business_id::text, type, title, message, metadata, read, created_at`

// Repository is the PostgreSQL Store.
type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, ob *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: ob}
}

func (r *Repository) Insert(ctx context.Context, m Message) (Notification, error) {
	metadata := m.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return Notification{}, err
	}
	var businessID *string
	if m.BusinessID != "" {
		businessID = &m.BusinessID
	}

	var n Notification
	err = r.pool.InTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO notifications (recipient_id, business_id, type, title, message, metadata)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+notificationColumns,
			m.RecipientID, businessID, m.Type, m.Title, m.Message, meta)
		if n, err = scanNotification(row); err != nil {
			return err
		}
		rec := n.Record()
		return r.emit(ctx, tx, changefeed.NotificationChange{Op: changefeed.OpInsert, Record: &rec})
	})
	return n, err
}

func (r *Repository) List(ctx context.Context, recipientID string, limit int) ([]Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// MarkAsRead flips one notification to read. Marking an already-read
// notification returns it unchanged without emitting a change.
func (r *Repository) MarkAsRead(ctx context.Context, recipientID, id string) (Notification, error) {
	var n Notification
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		n, err = scanNotification(tx.QueryRow(ctx, `
			SELECT `+notificationColumns+`
			FROM notifications
			WHERE id = $1 AND recipient_id = $2
			FOR UPDATE
		`, id, recipientID))
		if db.IsNotFound(err) {
			return ErrNotFound
		}
		if err != nil || n.Read {
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE notifications SET read = true WHERE id = $1`, id); err != nil {
			return err
		}
		prev := n.Record()
		n.Read = true
		rec := n.Record()
		return r.emit(ctx, tx, changefeed.NotificationChange{Op: changefeed.OpUpdate, Record: &rec, Previous: &prev})
	})
	return n, err
}

func (r *Repository) MarkAllAsRead(ctx context.Context, recipientID string) (int, error) {
	count := 0
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			UPDATE notifications
			SET read = true
			WHERE recipient_id = $1 AND read = false
			RETURNING `+notificationColumns,
			recipientID)
		if err != nil {
			return err
		}
		var updated []Notification
		for rows.Next() {
			n, err := scanNotification(rows)
			if err != nil {
				rows.Close()
				return err
			}
			updated = append(updated, n)
		}
		rows.Close()
		if rows.Err() != nil {
			return rows.Err()
		}

		for _, n := range updated {
			rec := n.Record()
			prev := rec
			prev.Read = false
			if err := r.emit(ctx, tx, changefeed.NotificationChange{Op: changefeed.OpUpdate, Record: &rec, Previous: &prev}); err != nil {
				return err
			}
		}
		count = len(updated)
		return nil
	})
	return count, err
}

func (r *Repository) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM notifications WHERE recipient_id = $1 AND read = false
	`, recipientID).Scan(&n)
	return n, err
}

func (r *Repository) emit(ctx context.Context, tx pgx.Tx, change changefeed.NotificationChange) error {
	evt, err := outbox.NotificationEvent(change)
	if err != nil {
		return err
	}
	return r.outbox.Insert(ctx, tx, evt)
}

func scanNotification(row pgx.Row) (Notification, error) {
	var (
		n    Notification
		meta []byte
	)
	if err := row.Scan(&n.ID, &n.RecipientID, &n.BusinessID, &n.Type, &n.Title, &n.Message, &meta, &n.Read, &n.CreatedAt); err != nil {
		return Notification{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &n.Metadata); err != nil {
			return Notification{}, err
		}
	}
	return n, nil
}
