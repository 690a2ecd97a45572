// Package booking runs appointment use cases: booking a slot, reading
// appointments and applying status transitions with their notifications.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	otelx "github.com/md-rashed-zaman/groombook/libs/otel"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/lifecycle"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/notify"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Store interface {
	Create(ctx context.Context, appt model.Appointment) (model.Appointment, error)
	GetView(ctx context.Context, id string) (model.View, error)
	ApplyTransition(ctx context.Context, current, next model.Appointment) (model.Appointment, error)
	ListForBusiness(ctx context.Context, businessID string) ([]model.View, error)
	ListForCustomer(ctx context.Context, customerID string) ([]model.View, error)
	BookedIntervals(ctx context.Context, businessID, date string) ([]model.Interval, error)
}

type Catalog interface {
	GetService(ctx context.Context, businessID, serviceID string) (model.Service, error)
	GetPet(ctx context.Context, petID string) (model.Pet, error)
	BusinessHours(ctx context.Context, businessID string, dayOfWeek int) (model.Hours, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, m notify.Message) (notify.Notification, error)
}

// Actor is the authenticated caller.
type Actor struct {
	UserID     string
	BusinessID string
	Party      lifecycle.Party
}

type Result struct {
	Appointment   model.View
	NewStatus     model.Status
	Notifications []notify.Notification
}

type Options struct {
	Location *time.Location
	SlotStep time.Duration
	Now      func() time.Time
	Metrics  *Metrics
}

type Service struct {
	store    Store
	catalog  Catalog
	notifier Dispatcher
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *Metrics
	loc      *time.Location
	step     time.Duration
	now      func() time.Time
}

func NewService(store Store, catalog Catalog, notifier Dispatcher, logger *slog.Logger, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.SlotStep <= 0 {
		opts.SlotStep = 15 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:    store,
		catalog:  catalog,
		notifier: notifier,
		logger:   logger,
		tracer:   otelx.Tracer("appointment-service/booking"),
		metrics:  opts.Metrics,
		loc:      opts.Location,
		step:     opts.SlotStep,
		now:      opts.Now,
	}
}

// Transition applies an action to an appointment. The guard check and the
// write happen in one conditional UPDATE; notifications are dispatched after
// the write and their failures never undo it.
func (s *Service) Transition(ctx context.Context, actor Actor, appointmentID string, req lifecycle.Request) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "booking.Transition", trace.WithAttributes(
		attribute.String("appointment.id", appointmentID),
		attribute.String("appointment.action", string(req.Action)),
	))
	defer span.End()

	res, err := s.transition(ctx, actor, appointmentID, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.transition(string(req.Action), resultLabel(err))
		return Result{}, err
	}
	s.metrics.transition(string(req.Action), "applied")
	return res, nil
}

func (s *Service) transition(ctx context.Context, actor Actor, appointmentID string, req lifecycle.Request) (Result, error) {
	if _, err := lifecycle.ParseAction(string(req.Action)); err != nil {
		return Result{}, err
	}
	view, err := s.load(ctx, appointmentID)
	if err != nil {
		return Result{}, err
	}
	if err := authorize(actor, req.Action, view); err != nil {
		return Result{}, err
	}

	out, err := lifecycle.Apply(view.Appointment, req)
	if err != nil {
		return Result{}, err
	}

	updated, err := s.store.ApplyTransition(ctx, view.Appointment, out.Next)
	if errors.Is(err, storage.ErrStaleState) {
		return Result{}, s.explainStale(ctx, appointmentID, req)
	}
	if errors.Is(err, storage.ErrSlotTaken) {
		return Result{}, &SlotUnavailableError{Date: out.Next.Date, StartTime: out.Next.StartTime}
	}
	if err != nil {
		return Result{}, &PersistenceError{Op: "apply transition", Err: err}
	}

	next := view
	next.Appointment = updated
	s.logger.Info("appointment transitioned",
		"appointment_id", updated.ID,
		"action", req.Action,
		"from", view.Status,
		"to", updated.Status,
	)

	return Result{
		Appointment:   next,
		NewStatus:     updated.Status,
		Notifications: s.dispatch(ctx, next, req.Reason, out.Intents),
	}, nil
}

// explainStale re-reads an appointment whose conditional write matched no
// row and reports why the action no longer applies.
func (s *Service) explainStale(ctx context.Context, appointmentID string, req lifecycle.Request) error {
	fresh, err := s.load(ctx, appointmentID)
	if err != nil {
		return err
	}
	if _, err := lifecycle.Apply(fresh.Appointment, req); err != nil {
		return err
	}
	return &ConflictError{AppointmentID: appointmentID}
}

func (s *Service) dispatch(ctx context.Context, v model.View, reason string, intents []lifecycle.Intent) []notify.Notification {
	sent := make([]notify.Notification, 0, len(intents))
	data := notify.DataFromView(v)
	data.Reason = strings.TrimSpace(reason)

	for _, intent := range intents {
		recipient := recipientFor(intent.Recipient, v)
		title, message, err := notify.Render(intent.Type, data)
		if err == nil {
			var n notify.Notification
			n, err = s.notifier.Dispatch(ctx, notify.Message{
				RecipientID: recipient,
				BusinessID:  v.BusinessID,
				Type:        intent.Type,
				Title:       title,
				Message:     message,
				Metadata: map[string]any{
					"appointment_id": v.ID,
					"status":         string(v.Status),
				},
			})
			if err == nil {
				sent = append(sent, n)
				continue
			}
		}
		s.metrics.dispatchFailure(string(intent.Type))
		s.logger.Warn("notification dispatch failed",
			"appointment_id", v.ID,
			"type", intent.Type,
			"recipient_id", recipient,
			"err", err,
		)
	}
	return sent
}

func (s *Service) Get(ctx context.Context, actor Actor, id string) (model.View, error) {
	v, err := s.load(ctx, id)
	if err != nil {
		return model.View{}, err
	}
	if !canSee(actor, v) {
		return model.View{}, ErrNotFound
	}
	return v, nil
}

func (s *Service) ListForBusiness(ctx context.Context, actor Actor) ([]model.View, error) {
	if actor.Party != lifecycle.PartyBusiness || actor.BusinessID == "" {
		return nil, &ForbiddenError{Reason: "only business owners can list business appointments"}
	}
	out, err := s.store.ListForBusiness(ctx, actor.BusinessID)
	if err != nil {
		return nil, &PersistenceError{Op: "list business appointments", Err: err}
	}
	return out, nil
}

func (s *Service) ListForCustomer(ctx context.Context, actor Actor) ([]model.View, error) {
	if actor.Party != lifecycle.PartyCustomer {
		return nil, &ForbiddenError{Reason: "only customers can list their appointments"}
	}
	out, err := s.store.ListForCustomer(ctx, actor.UserID)
	if err != nil {
		return nil, &PersistenceError{Op: "list customer appointments", Err: err}
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, id string) (model.View, error) {
	v, err := s.store.GetView(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.View{}, ErrNotFound
	}
	if err != nil {
		return model.View{}, &PersistenceError{Op: "load appointment", Err: err}
	}
	return v, nil
}

func authorize(actor Actor, action lifecycle.Action, v model.View) error {
	if !action.AllowedBy(actor.Party) {
		return &ForbiddenError{Action: action, Reason: "not allowed for " + string(actor.Party)}
	}
	if !canSee(actor, v) {
		return &ForbiddenError{Action: action, Reason: "appointment belongs to another account"}
	}
	return nil
}

func canSee(actor Actor, v model.View) bool {
	switch actor.Party {
	case lifecycle.PartySystem:
		return true
	case lifecycle.PartyBusiness:
		return (actor.BusinessID != "" && actor.BusinessID == v.BusinessID) ||
			(actor.UserID != "" && actor.UserID == v.BusinessOwnerID)
	case lifecycle.PartyCustomer:
		return actor.UserID != "" && actor.UserID == v.CustomerID
	}
	return false
}

func recipientFor(p lifecycle.Party, v model.View) string {
	if p == lifecycle.PartyBusiness {
		return v.BusinessOwnerID
	}
	return v.CustomerID
}

func resultLabel(err error) string {
	var (
		invalid   *lifecycle.InvalidTransitionError
		already   *lifecycle.AlreadyRescheduledError
		validErr  *lifecycle.ValidationError
		forbidden *ForbiddenError
		conflict  *ConflictError
		slot      *SlotUnavailableError
	)
	switch {
	case errors.As(err, &invalid), errors.As(err, &already):
		return "rejected"
	case errors.As(err, &validErr):
		return "invalid"
	case errors.As(err, &forbidden):
		return "forbidden"
	case errors.As(err, &conflict), errors.As(err, &slot):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}
	return "error"
}
