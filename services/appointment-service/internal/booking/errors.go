package booking

import (
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/lifecycle"
)

var ErrNotFound = errors.New("appointment not found")

// ForbiddenError is returned when the caller may not act on the appointment.
type ForbiddenError struct {
	Action lifecycle.Action
	Reason string
}

func (e *ForbiddenError) Error() string {
	if e.Action == "" {
		return "forbidden: " + e.Reason
	}
	return fmt.Sprintf("forbidden: cannot %s: %s", e.Action, e.Reason)
}

// ConflictError means another writer changed the appointment between read
// and write. Nothing was applied.
type ConflictError struct {
	AppointmentID string
}

func (e *ConflictError) Error() string {
	return "appointment " + e.AppointmentID + " was changed by someone else; reload and try again"
}

// PersistenceError wraps a store failure. The action was not applied and
// may be retried.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Retryable() bool { return true }
