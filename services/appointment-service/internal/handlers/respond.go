package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/md-rashed-zaman/groombook/libs/auth"
	"github.com/md-rashed-zaman/groombook/libs/httpx"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/booking"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/lifecycle"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/notify"
)

var (
	isoDate   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	wallClock = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d(:[0-5]\d)?$`)
)

// newValidator registers the date/time formats used by request bodies.
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		return isoDate.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("wallclock", func(fl validator.FieldLevel) bool {
		return wallClock.MatchString(fl.Field().String())
	})
	return v
}

var writeJSON = httpx.WriteJSON

type errorBody = httpx.ErrorBody

// writeError maps domain errors to HTTP responses.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		invalid   *lifecycle.InvalidTransitionError
		already   *lifecycle.AlreadyRescheduledError
		validErr  *lifecycle.ValidationError
		forbidden *booking.ForbiddenError
		conflict  *booking.ConflictError
		slot      *booking.SlotUnavailableError
		persist   *booking.PersistenceError
		fieldErrs validator.ValidationErrors
	)
	switch {
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "invalid_transition"})
	case errors.As(err, &already):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "already_rescheduled"})
	case errors.As(err, &validErr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "validation", Field: validErr.Field})
	case errors.As(err, &fieldErrs):
		field := ""
		if len(fieldErrs) > 0 {
			field = fieldErrs[0].Field()
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body", Code: "validation", Field: field})
	case errors.As(err, &forbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error(), Code: "forbidden"})
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, notify.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Code: "not_found"})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "conflict"})
	case errors.As(err, &slot):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "slot_unavailable"})
	case errors.As(err, &persist):
		logger.Error("persistence failure", "op", persist.Op, "err", persist.Err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "could not save changes, please retry", Code: "persistence"})
	default:
		logger.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Code: "internal"})
	}
}

// actorFrom converts the verified token identity into a booking actor.
func actorFrom(r *http.Request) (booking.Actor, bool) {
	a, ok := httpx.ActorFromContext(r.Context())
	if !ok {
		return booking.Actor{}, false
	}
	actor := booking.Actor{UserID: a.UserID, BusinessID: a.BusinessID}
	switch a.Role {
	case auth.RoleOwner:
		actor.Party = lifecycle.PartyBusiness
	case auth.RoleCustomer:
		actor.Party = lifecycle.PartyCustomer
	case auth.RoleSystem:
		actor.Party = lifecycle.PartySystem
	default:
		return booking.Actor{}, false
	}
	return actor, true
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
