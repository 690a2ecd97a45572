// Package projection keeps a dashboard's local copy of appointments and
// notifications in step with the change feed.
//
// Caches start from a bulk load, then apply INSERT/UPDATE/DELETE events as
// they arrive. Delivery is best-effort, so Reload is the way back to a known
// good state after a gap.
package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/md-rashed-zaman/groombook/libs/changefeed"
)

// Appointment is the denormalized row a dashboard renders.
type Appointment struct {
	changefeed.AppointmentRecord
	BusinessName string `json:"business_name"`
	CustomerName string `json:"customer_name"`
	PetName      string `json:"pet_name"`
}

// displayFields are joined in by the API and never trusted from an event.
var displayFields = []string{"business_name", "customer_name", "pet_name"}

type AppointmentLoader interface {
	LoadAppointments(ctx context.Context, scope changefeed.Scope) ([]Appointment, error)
	FetchAppointment(ctx context.Context, id string) (Appointment, error)
}

type AppointmentCache struct {
	scope  changefeed.Scope
	loader AppointmentLoader

	mu    sync.RWMutex
	items []Appointment
}

func NewAppointmentCache(scope changefeed.Scope, loader AppointmentLoader) *AppointmentCache {
	return &AppointmentCache{scope: scope, loader: loader}
}

func (c *AppointmentCache) Scope() changefeed.Scope { return c.scope }

// Reload replaces the collection with a fresh bulk load.
func (c *AppointmentCache) Reload(ctx context.Context) error {
	items, err := c.loader.LoadAppointments(ctx, c.scope)
	if err != nil {
		return fmt.Errorf("load appointments for %s: %w", c.scope, err)
	}
	items = slices.Clone(items)
	sortAppointments(items)

	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
	return nil
}

// Items returns a copy of the collection in (date, start time) order.
func (c *AppointmentCache) Items() []Appointment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.items)
}

func (c *AppointmentCache) Get(id string) (Appointment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.index(id); i >= 0 {
		return c.items[i], true
	}
	return Appointment{}, false
}

func (c *AppointmentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Apply merges one raw change event into the collection. Invalid events are
// rejected before they touch the collection.
func (c *AppointmentCache) Apply(ctx context.Context, raw []byte) error {
	change, err := changefeed.DecodeAppointmentChange(raw)
	if err != nil {
		return err
	}
	var envelope struct {
		Record json.RawMessage `json:"record"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("%w: %v", changefeed.ErrInvalidChange, err)
	}

	switch change.Op {
	case changefeed.OpInsert:
		return c.insert(ctx, change.Record.ID)
	case changefeed.OpUpdate:
		merged, err := c.merge(change.Record.ID, envelope.Record)
		if err != nil {
			return err
		}
		if !merged {
			return c.insert(ctx, change.Record.ID)
		}
		return nil
	case changefeed.OpDelete:
		c.remove(change.Previous.ID)
		return nil
	}
	return fmt.Errorf("%w: unknown op %q", changefeed.ErrInvalidChange, change.Op)
}

// insert fetches the denormalized view for id unless it is already held.
func (c *AppointmentCache) insert(ctx context.Context, id string) error {
	if _, ok := c.Get(id); ok {
		return nil
	}
	view, err := c.loader.FetchAppointment(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch appointment %s: %w", id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index(id) >= 0 {
		return nil
	}
	c.items = append(c.items, view)
	sortAppointments(c.items)
	return nil
}

// merge overlays the fields present in record onto the local row while
// keeping the locally joined display fields. It reports false when id is
// not held.
func (c *AppointmentCache) merge(id string, record json.RawMessage) (bool, error) {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(record, &fields); err != nil {
		return false, fmt.Errorf("%w: %v", changefeed.ErrInvalidChange, err)
	}
	for _, k := range displayFields {
		delete(fields, k)
	}
	if v, ok := fields["service_name"]; ok && isBlank(v) {
		delete(fields, "service_name")
	}
	patch, err := json.Marshal(fields)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.index(id)
	if i < 0 {
		return false, nil
	}
	next := c.items[i]
	detach(&next.AppointmentRecord)
	if err := json.Unmarshal(patch, &next); err != nil {
		return false, fmt.Errorf("%w: %v", changefeed.ErrInvalidChange, err)
	}
	c.items[i] = next
	sortAppointments(c.items)
	return true, nil
}

func (c *AppointmentCache) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.index(id); i >= 0 {
		c.items = slices.Delete(c.items, i, i+1)
	}
}

func (c *AppointmentCache) index(id string) int {
	return slices.IndexFunc(c.items, func(a Appointment) bool { return a.ID == id })
}

func sortAppointments(items []Appointment) {
	slices.SortStableFunc(items, func(a, b Appointment) int {
		if n := strings.Compare(a.AppointmentDate, b.AppointmentDate); n != 0 {
			return n
		}
		return strings.Compare(a.StartTime, b.StartTime)
	})
}

func isBlank(v json.RawMessage) bool {
	s := strings.TrimSpace(string(v))
	return s == "null" || s == `""`
}

// detach copies pointer fields so decoding into r cannot write through to
// values shared with earlier snapshots.
func detach(r *changefeed.AppointmentRecord) {
	for _, p := range []**string{
		&r.RescheduleProposedDate,
		&r.RescheduleProposedTime,
		&r.RescheduleReason,
		&r.RejectionReason,
		&r.Notes,
	} {
		if *p != nil {
			v := **p
			*p = &v
		}
	}
}
