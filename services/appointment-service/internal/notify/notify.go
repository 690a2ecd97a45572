// Package notify persists in-app notifications and serves the recipient's
// inbox reads.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/groombook/libs/changefeed"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/model"
)

var ErrNotFound = errors.New("notification not found")

type Notification struct {
	ID          string                 `json:"id"`
	RecipientID string                 `json:"recipient_id"`
	BusinessID  *string                `json:"business_id"`
	Type        model.NotificationType `json:"type"`
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	Metadata    map[string]any         `json:"metadata"`
	Read        bool                   `json:"read"`
	CreatedAt   time.Time              `json:"created_at"`
}

func (n Notification) Record() changefeed.NotificationRecord {
	var meta json.RawMessage
	if len(n.Metadata) > 0 {
		meta, _ = json.Marshal(n.Metadata)
	}
	return changefeed.NotificationRecord{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		BusinessID:  n.BusinessID,
		Type:        string(n.Type),
		Title:       n.Title,
		Message:     n.Message,
		Metadata:    meta,
		Read:        n.Read,
		CreatedAt:   n.CreatedAt,
	}
}

// Message is a rendered notification ready to be stored.
type Message struct {
	RecipientID string
	BusinessID  string
	Type        model.NotificationType
	Title       string
	Message     string
	Metadata    map[string]any
}

func (m Message) validate() error {
	switch {
	case strings.TrimSpace(m.RecipientID) == "":
		return errors.New("recipient is required")
	case !changefeed.KnownNotificationType(string(m.Type)):
		return fmt.Errorf("unknown notification type %q", m.Type)
	case strings.TrimSpace(m.Title) == "":
		return errors.New("title is required")
	}
	return nil
}

// DispatchError wraps any failure to persist a notification.
type DispatchError struct {
	RecipientID string
	Type        model.NotificationType
	Err         error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s to %s: %v", e.Type, e.RecipientID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Store persists notifications. Implementations write the matching change
// event in the same transaction as the row.
type Store interface {
	Insert(ctx context.Context, m Message) (Notification, error)
	List(ctx context.Context, recipientID string, limit int) ([]Notification, error)
	MarkAsRead(ctx context.Context, recipientID, id string) (Notification, error)
	MarkAllAsRead(ctx context.Context, recipientID string) (int, error)
	UnreadCount(ctx context.Context, recipientID string) (int, error)
}

// Dispatcher stores exactly one notification per call. Calls are not
// idempotent; callers dispatch once per side effect.
type Dispatcher struct {
	store Store
}

func NewDispatcher(store Store) *Dispatcher {
	return &Dispatcher{store: store}
}

func (d *Dispatcher) Dispatch(ctx context.Context, m Message) (Notification, error) {
	if err := m.validate(); err != nil {
		return Notification{}, &DispatchError{RecipientID: m.RecipientID, Type: m.Type, Err: err}
	}
	n, err := d.store.Insert(ctx, m)
	if err != nil {
		return Notification{}, &DispatchError{RecipientID: m.RecipientID, Type: m.Type, Err: err}
	}
	return n, nil
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func (d *Dispatcher) List(ctx context.Context, recipientID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return d.store.List(ctx, recipientID, limit)
}

func (d *Dispatcher) MarkAsRead(ctx context.Context, recipientID, id string) (Notification, error) {
	return d.store.MarkAsRead(ctx, recipientID, id)
}

func (d *Dispatcher) MarkAllAsRead(ctx context.Context, recipientID string) (int, error) {
	return d.store.MarkAllAsRead(ctx, recipientID)
}

func (d *Dispatcher) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	return d.store.UnreadCount(ctx, recipientID)
}
