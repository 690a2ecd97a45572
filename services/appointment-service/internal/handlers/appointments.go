package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/md-rashed-zaman/groombook/libs/httpx"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/booking"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/lifecycle"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/notify"
)

// Appointments is the use-case surface the HTTP layer drives.
type Appointments interface {
	Create(ctx context.Context, actor booking.Actor, req booking.CreateRequest) (model.View, error)
	Get(ctx context.Context, actor booking.Actor, id string) (model.View, error)
	ListForBusiness(ctx context.Context, actor booking.Actor) ([]model.View, error)
	ListForCustomer(ctx context.Context, actor booking.Actor) ([]model.View, error)
	Transition(ctx context.Context, actor booking.Actor, appointmentID string, req lifecycle.Request) (booking.Result, error)
	AvailableSlots(ctx context.Context, businessID, serviceID, date string) ([]string, error)
}

type AppointmentHandler struct {
	svc      Appointments
	logger   *slog.Logger
	validate *validator.Validate
}

func NewAppointmentHandler(svc Appointments, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{svc: svc, logger: logger, validate: newValidator()}
}

type createAppointmentRequest struct {
	BusinessID string `json:"business_id" validate:"required"`
	ServiceID  string `json:"service_id" validate:"required"`
	PetID      string `json:"pet_id" validate:"required"`
	Date       string `json:"appointment_date" validate:"required,isodate"`
	StartTime  string `json:"start_time" validate:"required,wallclock"`
	Notes      string `json:"notes" validate:"max=1000"`
}

type transitionRequest struct {
	AppointmentID string `json:"appointment_id" validate:"required"`
	Action        string `json:"action" validate:"required"`
	Reason        string `json:"reason" validate:"max=500"`
	ProposedDate  string `json:"proposed_date"`
	ProposedTime  string `json:"proposed_time"`
}

type transitionResponse struct {
	Appointment   model.View            `json:"appointment"`
	NewStatus     model.Status          `json:"new_status"`
	Notifications []notify.Notification `json:"notifications"`
}

type slotsResponse struct {
	BusinessID string   `json:"business_id"`
	ServiceID  string   `json:"service_id"`
	Date       string   `json:"date"`
	Slots      []string `json:"slots"`
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	actor, ok := actorFrom(r)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "unauthenticated")
		return
	}

	var req createAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	view, err := h.svc.Create(r.Context(), actor, booking.CreateRequest{
		BusinessID: strings.TrimSpace(req.BusinessID),
		ServiceID:  strings.TrimSpace(req.ServiceID),
		PetID:      strings.TrimSpace(req.PetID),
		Date:       req.Date,
		StartTime:  req.StartTime,
		Notes:      req.Notes,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// List serves the bulk load a dashboard warms its cache from. The scope
// query parameter picks the business or customer side; it defaults to the
// caller's own side.
func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	actor, ok := actorFrom(r)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "unauthenticated")
		return
	}

	scope := strings.TrimSpace(r.URL.Query().Get("scope"))
	if scope == "" {
		scope = "customer"
		if actor.Party == lifecycle.PartyBusiness {
			scope = "business"
		}
	}

	var (
		items []model.View
		err   error
	)
	switch scope {
	case "business":
		items, err = h.svc.ListForBusiness(r.Context(), actor)
	case "customer":
		items, err = h.svc.ListForCustomer(r.Context(), actor)
	default:
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "scope must be business or customer")
		return
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AppointmentHandler) View(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	actor, ok := actorFrom(r)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "unauthenticated")
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}

	view, err := h.svc.Get(r.Context(), actor, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *AppointmentHandler) Transition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	actor, ok := actorFrom(r)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "unauthenticated")
		return
	}

	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	action, err := lifecycle.ParseAction(strings.TrimSpace(req.Action))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.svc.Transition(r.Context(), actor, strings.TrimSpace(req.AppointmentID), lifecycle.Request{
		Action:       action,
		Reason:       req.Reason,
		ProposedDate: req.ProposedDate,
		ProposedTime: req.ProposedTime,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, transitionResponse{
		Appointment:   res.Appointment,
		NewStatus:     res.NewStatus,
		Notifications: res.Notifications,
	})
}

func (h *AppointmentHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	q := r.URL.Query()
	businessID := strings.TrimSpace(q.Get("business_id"))
	serviceID := strings.TrimSpace(q.Get("service_id"))
	date := strings.TrimSpace(q.Get("date"))
	if businessID == "" || serviceID == "" || date == "" {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "business_id, service_id and date required")
		return
	}

	slots, err := h.svc.AvailableSlots(r.Context(), businessID, serviceID, date)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, slotsResponse{BusinessID: businessID, ServiceID: serviceID, Date: date, Slots: slots})
}
