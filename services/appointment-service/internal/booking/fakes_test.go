package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/notify"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/storage"
	"github.com/shopspring/decimal"
)

const (
	businessID = "biz-1"
	ownerID    = "owner-1"
	customerID = "cust-1"
	petID      = "pet-1"
	serviceID  = "svc-1"
)

// memStore mimics the conditional UPDATE of the PostgreSQL repository.
type memStore struct {
	mu          sync.Mutex
	views       map[string]model.View
	seq         int
	applyCalls  int
	applyErr    error
	createErr   error
	beforeApply func(id string)
}

func newMemStore() *memStore {
	return &memStore{views: map[string]model.View{}}
}

func (m *memStore) put(a model.Appointment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views[a.ID] = model.View{
		Appointment:     a,
		BusinessName:    "Happy Paws",
		BusinessOwnerID: ownerID,
		CustomerName:    "Ana Silva",
		PetName:         "Luna",
	}
}

func (m *memStore) Create(_ context.Context, a model.Appointment) (model.Appointment, error) {
	if m.createErr != nil {
		return model.Appointment{}, m.createErr
	}
	m.mu.Lock()
	m.seq++
	a.ID = fmt.Sprintf("appt-%d", m.seq)
	a.OriginalDate = a.Date
	a.OriginalTime = a.StartTime
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.mu.Unlock()
	m.put(a)
	return a, nil
}

func (m *memStore) GetView(_ context.Context, id string) (model.View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.views[id]
	if !ok {
		return model.View{}, storage.ErrNotFound
	}
	return v, nil
}

func (m *memStore) ApplyTransition(_ context.Context, current, next model.Appointment) (model.Appointment, error) {
	if m.beforeApply != nil {
		m.beforeApply(current.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyCalls++
	if m.applyErr != nil {
		return model.Appointment{}, m.applyErr
	}
	v, ok := m.views[current.ID]
	if !ok || v.Status != current.Status || v.RescheduleCount != current.RescheduleCount {
		return model.Appointment{}, storage.ErrStaleState
	}
	stored := v.Appointment
	stored.Status = next.Status
	stored.Date = next.Date
	stored.StartTime = next.StartTime
	stored.EndTime = next.EndTime
	stored.RescheduleCount = next.RescheduleCount
	stored.RescheduleProposedDate = next.RescheduleProposedDate
	stored.RescheduleProposedTime = next.RescheduleProposedTime
	stored.RescheduleReason = next.RescheduleReason
	stored.RejectionReason = next.RejectionReason
	stored.UpdatedAt = time.Now()
	v.Appointment = stored
	m.views[current.ID] = v
	return stored, nil
}

func (m *memStore) ListForBusiness(_ context.Context, id string) ([]model.View, error) {
	return m.filter(func(v model.View) bool { return v.BusinessID == id }), nil
}

func (m *memStore) ListForCustomer(_ context.Context, id string) ([]model.View, error) {
	return m.filter(func(v model.View) bool { return v.CustomerID == id }), nil
}

func (m *memStore) BookedIntervals(_ context.Context, bid, date string) ([]model.Interval, error) {
	var out []model.Interval
	for _, v := range m.filter(func(v model.View) bool { return v.BusinessID == bid && v.Date == date }) {
		switch v.Status {
		case model.StatusPending, model.StatusConfirmed, model.StatusReschedulePending:
			out = append(out, model.Interval{Start: v.StartTime, End: v.EndTime})
		}
	}
	return out, nil
}

func (m *memStore) filter(keep func(model.View) bool) []model.View {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.View{}
	for _, v := range m.views {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

type memCatalog struct {
	services map[string]model.Service
	hours    map[int]model.Hours
}

func newMemCatalog() *memCatalog {
	c := &memCatalog{
		services: map[string]model.Service{
			serviceID: {ID: serviceID, BusinessID: businessID, Name: "Full Groom", Duration: 90, Price: decimal.RequireFromString("65.00"), IsActive: true},
		},
		hours: map[int]model.Hours{},
	}
	for d := 1; d <= 6; d++ {
		c.hours[d] = model.Hours{DayOfWeek: d, OpenTime: "09:00", CloseTime: "18:00"}
	}
	c.hours[0] = model.Hours{DayOfWeek: 0, IsClosed: true}
	return c
}

func (c *memCatalog) GetService(_ context.Context, bid, sid string) (model.Service, error) {
	s, ok := c.services[sid]
	if !ok || s.BusinessID != bid {
		return model.Service{}, storage.ErrNotFound
	}
	return s, nil
}

func (c *memCatalog) GetPet(_ context.Context, id string) (model.Pet, error) {
	if id != petID {
		return model.Pet{}, storage.ErrNotFound
	}
	return model.Pet{ID: petID, CustomerID: customerID, Name: "Luna"}, nil
}

func (c *memCatalog) BusinessHours(_ context.Context, _ string, dow int) (model.Hours, error) {
	return c.hours[dow], nil
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, m notify.Message) (notify.Notification, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return notify.Notification{}, &notify.DispatchError{RecipientID: m.RecipientID, Type: m.Type, Err: d.err}
	}
	d.sent = append(d.sent, m)
	return notify.Notification{ID: fmt.Sprintf("n-%d", len(d.sent)), RecipientID: m.RecipientID, Type: m.Type, Title: m.Title, Message: m.Message}, nil
}

var errDown = errors.New("database is down")

var fixedNow = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func newTestService(store *memStore, catalog *memCatalog, d *recordingDispatcher) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, catalog, d, logger, Options{Now: func() time.Time { return fixedNow }})
}
