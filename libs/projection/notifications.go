package projection

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/md-rashed-zaman/groombook/libs/changefeed"
)

type Notification = changefeed.NotificationRecord

// NotificationAPI is the server side of a recipient's inbox.
type NotificationAPI interface {
	LoadNotifications(ctx context.Context, recipientID string) ([]Notification, error)
	MarkAsRead(ctx context.Context, id string) error
	MarkAllAsRead(ctx context.Context) error
}

// NotificationCache holds one recipient's notifications, newest first. The
// unread count is always derived from the collection.
type NotificationCache struct {
	recipientID string
	api         NotificationAPI

	mu    sync.RWMutex
	items []Notification
}

func NewNotificationCache(recipientID string, api NotificationAPI) *NotificationCache {
	return &NotificationCache{recipientID: recipientID, api: api}
}

func (c *NotificationCache) Scope() changefeed.Scope {
	return changefeed.RecipientScope(c.recipientID)
}

func (c *NotificationCache) Reload(ctx context.Context) error {
	items, err := c.api.LoadNotifications(ctx, c.recipientID)
	if err != nil {
		return fmt.Errorf("load notifications for %s: %w", c.recipientID, err)
	}
	items = slices.Clone(items)
	sortNotifications(items)

	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
	return nil
}

func (c *NotificationCache) Items() []Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.items)
}

func (c *NotificationCache) UnreadCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, item := range c.items {
		if !item.Read {
			n++
		}
	}
	return n
}

// Apply merges one raw change event. Notification rows carry everything a
// dashboard shows, so no fetch is needed on INSERT.
func (c *NotificationCache) Apply(_ context.Context, raw []byte) error {
	change, err := changefeed.DecodeNotificationChange(raw)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch change.Op {
	case changefeed.OpInsert:
		if c.index(change.Record.ID) < 0 {
			c.items = append(c.items, *change.Record)
		}
	case changefeed.OpUpdate:
		if i := c.index(change.Record.ID); i >= 0 {
			next := *change.Record
			if len(next.Metadata) == 0 {
				next.Metadata = c.items[i].Metadata
			}
			c.items[i] = next
		} else {
			c.items = append(c.items, *change.Record)
		}
	case changefeed.OpDelete:
		if i := c.index(change.Previous.ID); i >= 0 {
			c.items = slices.Delete(c.items, i, i+1)
		}
	}
	sortNotifications(c.items)
	return nil
}

// MarkAsRead flags one notification on the server, then locally.
func (c *NotificationCache) MarkAsRead(ctx context.Context, id string) error {
	if err := c.api.MarkAsRead(ctx, id); err != nil {
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.index(id); i >= 0 {
		c.items[i].Read = true
	}
	return nil
}

func (c *NotificationCache) MarkAllAsRead(ctx context.Context) error {
	if err := c.api.MarkAllAsRead(ctx); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		c.items[i].Read = true
	}
	return nil
}

func (c *NotificationCache) index(id string) int {
	return slices.IndexFunc(c.items, func(n Notification) bool { return n.ID == id })
}

func sortNotifications(items []Notification) {
	slices.SortStableFunc(items, func(a, b Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
