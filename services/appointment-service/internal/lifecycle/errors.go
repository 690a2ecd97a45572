package lifecycle

import (
	"fmt"

	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/model"
)

// InvalidTransitionError is returned when an action is not legal from the
// appointment's current status.
type InvalidTransitionError struct {
	From   model.Status
	Action Action
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s an appointment that is %s", e.Action, e.From)
}

// AlreadyRescheduledError is returned when a reschedule is proposed for an
// appointment that already used its one proposal.
type AlreadyRescheduledError struct {
	AppointmentID string
}

func (e *AlreadyRescheduledError) Error() string {
	return "this appointment has already been rescheduled once and cannot be rescheduled again"
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}
