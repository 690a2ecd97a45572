package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/availability"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/lifecycle"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/storage"
)

// SlotUnavailableError is returned when a requested slot is already taken.
type SlotUnavailableError struct {
	Date      string
	StartTime string
}

func (e *SlotUnavailableError) Error() string {
	return "the slot " + e.Date + " " + e.StartTime + " is no longer available"
}

type CreateRequest struct {
	BusinessID string
	ServiceID  string
	PetID      string
	Date       string
	StartTime  string
	Notes      string
}

// Create books a pending appointment for the calling customer. Service name,
// duration and price are copied onto the appointment at this point.
func (s *Service) Create(ctx context.Context, actor Actor, req CreateRequest) (model.View, error) {
	view, err := s.create(ctx, actor, req)
	if err != nil {
		s.metrics.booking(resultLabel(err))
		return model.View{}, err
	}
	s.metrics.booking("created")
	return view, nil
}

func (s *Service) create(ctx context.Context, actor Actor, req CreateRequest) (model.View, error) {
	if actor.Party != lifecycle.PartyCustomer || actor.UserID == "" {
		return model.View{}, &ForbiddenError{Reason: "only customers can book appointments"}
	}

	date, err := model.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		return model.View{}, &lifecycle.ValidationError{Field: "appointment_date", Reason: err.Error()}
	}
	start, err := model.NormalizeClock(strings.TrimSpace(req.StartTime))
	if err != nil {
		return model.View{}, &lifecycle.ValidationError{Field: "start_time", Reason: err.Error()}
	}

	svc, err := s.catalog.GetService(ctx, req.BusinessID, req.ServiceID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && !svc.IsActive) {
		return model.View{}, &lifecycle.ValidationError{Field: "service_id", Reason: "service is not offered by this business"}
	}
	if err != nil {
		return model.View{}, &PersistenceError{Op: "load service", Err: err}
	}

	pet, err := s.catalog.GetPet(ctx, req.PetID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && pet.CustomerID != actor.UserID) {
		return model.View{}, &lifecycle.ValidationError{Field: "pet_id", Reason: "pet not found"}
	}
	if err != nil {
		return model.View{}, &PersistenceError{Op: "load pet", Err: err}
	}

	end, ok, err := model.EndTime(start, svc.Duration)
	if err != nil || !ok {
		return model.View{}, &lifecycle.ValidationError{Field: "start_time", Reason: "appointment would run past midnight"}
	}

	dateStr := date.Format(model.DateLayout)
	minutes, _ := model.ParseClock(start)
	startAt := time.Date(date.Year(), date.Month(), date.Day(), minutes/60, minutes%60, 0, 0, s.loc)
	if startAt.Before(s.now()) {
		return model.View{}, &lifecycle.ValidationError{Field: "start_time", Reason: "cannot book a time in the past"}
	}
	day, err := s.day(ctx, req.BusinessID, dateStr)
	if err != nil {
		return model.View{}, err
	}
	if err := day.Check(start, end); err != nil {
		if errors.Is(err, availability.ErrOverlap) {
			return model.View{}, &SlotUnavailableError{Date: dateStr, StartTime: start}
		}
		return model.View{}, &lifecycle.ValidationError{Field: "start_time", Reason: err.Error()}
	}

	var notes *string
	if n := strings.TrimSpace(req.Notes); n != "" {
		notes = &n
	}
	created, err := s.store.Create(ctx, model.Appointment{
		BusinessID:  req.BusinessID,
		CustomerID:  actor.UserID,
		PetID:       pet.ID,
		ServiceID:   svc.ID,
		Date:        dateStr,
		StartTime:   start,
		EndTime:     end,
		Status:      model.StatusPending,
		ServiceName: svc.Name,
		Duration:    svc.Duration,
		TotalAmount: svc.Price,
		Notes:       notes,
	})
	if errors.Is(err, storage.ErrSlotTaken) {
		return model.View{}, &SlotUnavailableError{Date: dateStr, StartTime: start}
	}
	if err != nil {
		return model.View{}, &PersistenceError{Op: "create appointment", Err: err}
	}

	view, err := s.load(ctx, created.ID)
	if err != nil {
		return model.View{}, err
	}
	s.logger.Info("appointment booked", "appointment_id", view.ID, "business_id", view.BusinessID)
	s.dispatch(ctx, view, "", []lifecycle.Intent{{Recipient: lifecycle.PartyBusiness, Type: model.NotificationNewAppointment}})
	return view, nil
}

// AvailableSlots lists free start times for a service on date.
func (s *Service) AvailableSlots(ctx context.Context, businessID, serviceID, date string) ([]string, error) {
	d, err := model.ParseDate(strings.TrimSpace(date))
	if err != nil {
		return nil, &lifecycle.ValidationError{Field: "date", Reason: err.Error()}
	}
	svc, err := s.catalog.GetService(ctx, businessID, serviceID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && !svc.IsActive) {
		return nil, &lifecycle.ValidationError{Field: "service_id", Reason: "service is not offered by this business"}
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load service", Err: err}
	}

	day, err := s.day(ctx, businessID, d.Format(model.DateLayout))
	if err != nil {
		return nil, err
	}
	slots, err := day.Slots(svc.Duration, s.step, s.now().In(s.loc))
	if errors.Is(err, availability.ErrClosed) {
		return []string{}, nil
	}
	return slots, err
}

func (s *Service) day(ctx context.Context, businessID, date string) (availability.Day, error) {
	d, err := model.ParseDate(date)
	if err != nil {
		return availability.Day{}, err
	}
	hours, err := s.catalog.BusinessHours(ctx, businessID, int(d.Weekday()))
	if err != nil {
		return availability.Day{}, &PersistenceError{Op: "load business hours", Err: err}
	}
	booked, err := s.store.BookedIntervals(ctx, businessID, date)
	if err != nil {
		return availability.Day{}, &PersistenceError{Op: "load booked intervals", Err: err}
	}
	return availability.Day{Date: date, Hours: hours, Booked: booked, Loc: s.loc}, nil
}
