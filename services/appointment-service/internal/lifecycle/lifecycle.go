// Package lifecycle holds the appointment status rules. Apply is pure: it
// never touches storage and never mutates its input.
package lifecycle

import (
	"strings"

	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/model"
)

type Request struct {
	Action       Action
	Reason       string
	ProposedDate string
	ProposedTime string
}

// Intent asks for one notification to be sent once the transition is stored.
type Intent struct {
	Recipient Party
	Type      model.NotificationType
}

type Outcome struct {
	Next    model.Appointment
	Intents []Intent
}

// Apply validates req against appt and returns the next appointment state
// together with the notifications the transition produces.
func Apply(appt model.Appointment, req Request) (Outcome, error) {
	next := appt

	switch req.Action {
	case ActionAccept:
		if appt.Status != model.StatusPending {
			return Outcome{}, invalid(appt, req)
		}
		next.Status = model.StatusConfirmed
		return outcome(next, PartyCustomer, model.NotificationAppointmentConfirmed), nil

	case ActionReject:
		if appt.Status != model.StatusPending {
			return Outcome{}, invalid(appt, req)
		}
		next.Status = model.StatusRejected
		next.RejectionReason = model.StringPtr(req.Reason)
		return outcome(next, PartyCustomer, model.NotificationAppointmentRejected), nil

	case ActionProposeReschedule:
		if appt.RescheduleCount >= model.MaxReschedules {
			return Outcome{}, &AlreadyRescheduledError{AppointmentID: appt.ID}
		}
		if appt.Status != model.StatusPending {
			return Outcome{}, invalid(appt, req)
		}
		date, start, err := validateProposal(req.ProposedDate, req.ProposedTime, appt.Duration)
		if err != nil {
			return Outcome{}, err
		}
		next.Status = model.StatusReschedulePending
		next.RescheduleCount = appt.RescheduleCount + 1
		next.RescheduleProposedDate = model.StringPtr(date)
		next.RescheduleProposedTime = model.StringPtr(start)
		next.RescheduleReason = optional(req.Reason)
		return outcome(next, PartyCustomer, model.NotificationRescheduleProposed), nil

	case ActionCustomerAcceptReschedule:
		if appt.Status != model.StatusReschedulePending {
			return Outcome{}, invalid(appt, req)
		}
		if appt.RescheduleProposedDate == nil || appt.RescheduleProposedTime == nil {
			return Outcome{}, &ValidationError{Field: "reschedule", Reason: "no proposed date and time on record"}
		}
		date, start, err := validateProposal(*appt.RescheduleProposedDate, *appt.RescheduleProposedTime, appt.Duration)
		if err != nil {
			return Outcome{}, err
		}
		end, _, _ := model.EndTime(start, appt.Duration)
		next.Status = model.StatusConfirmed
		next.Date = date
		next.StartTime = start
		next.EndTime = end
		return outcome(next, PartyBusiness, model.NotificationRescheduleAccepted), nil

	case ActionCustomerRejectReschedule:
		if appt.Status != model.StatusReschedulePending {
			return Outcome{}, invalid(appt, req)
		}
		next.Status = model.StatusCancelled
		return outcome(next, PartyBusiness, model.NotificationRescheduleRejected), nil

	case ActionComplete:
		if appt.Status != model.StatusPending && appt.Status != model.StatusConfirmed {
			return Outcome{}, invalid(appt, req)
		}
		next.Status = model.StatusCompleted
		return outcome(next, PartyCustomer, model.NotificationAppointmentCompleted), nil
	}

	_, err := ParseAction(string(req.Action))
	return Outcome{}, err
}

// validateProposal checks a proposed slot and returns it normalized.
func validateProposal(date, start string, duration int) (string, string, error) {
	date = strings.TrimSpace(date)
	start = strings.TrimSpace(start)
	if date == "" {
		return "", "", &ValidationError{Field: "proposed_date", Reason: "is required"}
	}
	if start == "" {
		return "", "", &ValidationError{Field: "proposed_time", Reason: "is required"}
	}
	if _, err := model.ParseDate(date); err != nil {
		return "", "", &ValidationError{Field: "proposed_date", Reason: err.Error()}
	}
	normalized, err := model.NormalizeClock(start)
	if err != nil {
		return "", "", &ValidationError{Field: "proposed_time", Reason: err.Error()}
	}
	if _, ok, _ := model.EndTime(normalized, duration); !ok {
		return "", "", &ValidationError{Field: "proposed_time", Reason: "appointment would run past midnight"}
	}
	return date, normalized, nil
}

func invalid(appt model.Appointment, req Request) error {
	return &InvalidTransitionError{From: appt.Status, Action: req.Action}
}

func outcome(next model.Appointment, to Party, t model.NotificationType) Outcome {
	return Outcome{Next: next, Intents: []Intent{{Recipient: to, Type: t}}}
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
