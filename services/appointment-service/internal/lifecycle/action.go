package lifecycle

import (
	"fmt"

	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/model"
)

type Action string

const (
	ActionAccept                   Action = "accept"
	ActionReject                   Action = "reject"
	ActionProposeReschedule        Action = "propose_reschedule"
	ActionCustomerAcceptReschedule Action = "customer_accept_reschedule"
	ActionCustomerRejectReschedule Action = "customer_reject_reschedule"
	ActionComplete                 Action = "complete"
)

// Party identifies who acts on, or is notified about, an appointment.
type Party string

const (
	PartyBusiness Party = "business"
	PartyCustomer Party = "customer"
	PartySystem   Party = "system"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionAccept, ActionReject, ActionProposeReschedule,
		ActionCustomerAcceptReschedule, ActionCustomerRejectReschedule, ActionComplete:
		return a, nil
	}
	return "", &ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", s)}
}

// AllowedParties lists who may perform an action.
func (a Action) AllowedParties() []Party {
	switch a {
	case ActionAccept, ActionReject, ActionProposeReschedule:
		return []Party{PartyBusiness}
	case ActionCustomerAcceptReschedule, ActionCustomerRejectReschedule:
		return []Party{PartyCustomer}
	case ActionComplete:
		return []Party{PartySystem, PartyBusiness}
	}
	return nil
}

func (a Action) AllowedBy(p Party) bool {
	for _, allowed := range a.AllowedParties() {
		if allowed == p {
			return true
		}
	}
	return false
}

// Terminal reports whether no action can leave status s.
func Terminal(s model.Status) bool {
	switch s {
	case model.StatusRejected, model.StatusCancelled, model.StatusCompleted:
		return true
	}
	return false
}
