package notify

import (
	"fmt"

	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/model"
)

// TemplateData carries the facts a notification text is rendered from.
// Rendering happens once, at dispatch; stored text is never re-rendered.
type TemplateData struct {
	BusinessName string
	CustomerName string
	PetName      string
	ServiceName  string
	Date         string
	StartTime    string
	ProposedDate string
	ProposedTime string
	Reason       string
	Amount       string
}

type template func(d TemplateData) (title, message string)

var catalog = map[model.NotificationType]template{
	model.NotificationNewAppointment: func(d TemplateData) (string, string) {
		return "New appointment request",
			fmt.Sprintf("%s requested %s for %s on %s at %s.", d.CustomerName, d.ServiceName, d.PetName, d.Date, d.StartTime)
	},
	model.NotificationAppointmentConfirmed: func(d TemplateData) (string, string) {
		return "Appointment confirmed",
			fmt.Sprintf("%s confirmed %s for %s on %s at %s.", d.BusinessName, d.ServiceName, d.PetName, d.Date, d.StartTime)
	},
	model.NotificationAppointmentRejected: func(d TemplateData) (string, string) {
		msg := fmt.Sprintf("%s could not take %s for %s on %s at %s.", d.BusinessName, d.ServiceName, d.PetName, d.Date, d.StartTime)
		if d.Reason != "" {
			msg += " Reason: " + d.Reason
		}
		return "Appointment declined", msg
	},
	model.NotificationRescheduleProposed: func(d TemplateData) (string, string) {
		msg := fmt.Sprintf("%s proposed moving %s for %s to %s at %s.", d.BusinessName, d.ServiceName, d.PetName, d.ProposedDate, d.ProposedTime)
		if d.Reason != "" {
			msg += " Reason: " + d.Reason
		}
		return "New time proposed", msg
	},
	model.NotificationRescheduleAccepted: func(d TemplateData) (string, string) {
		return "Reschedule accepted",
			fmt.Sprintf("%s accepted the new time for %s: %s at %s.", d.CustomerName, d.PetName, d.Date, d.StartTime)
	},
	model.NotificationRescheduleRejected: func(d TemplateData) (string, string) {
		return "Reschedule declined",
			fmt.Sprintf("%s declined the new time for %s. The appointment has been cancelled.", d.CustomerName, d.PetName)
	},
	model.NotificationAppointmentCompleted: func(d TemplateData) (string, string) {
		return "Appointment completed",
			fmt.Sprintf("%s for %s at %s is complete. We hope to see you again.", d.ServiceName, d.PetName, d.BusinessName)
	},
	model.NotificationPaymentReceived: func(d TemplateData) (string, string) {
		return "Payment received",
			fmt.Sprintf("%s paid %s for %s on %s.", d.CustomerName, d.Amount, d.ServiceName, d.Date)
	},
	model.NotificationReview: func(d TemplateData) (string, string) {
		return "New review",
			fmt.Sprintf("%s left a review for %s.", d.CustomerName, d.BusinessName)
	},
}

func Render(t model.NotificationType, d TemplateData) (title, message string, err error) {
	tpl, ok := catalog[t]
	if !ok {
		return "", "", fmt.Errorf("no template for notification type %q", t)
	}
	title, message = tpl(d)
	return title, message, nil
}

// DataFromView fills template data from an appointment view.
func DataFromView(v model.View) TemplateData {
	d := TemplateData{
		BusinessName: v.BusinessName,
		CustomerName: v.CustomerName,
		PetName:      v.PetName,
		ServiceName:  v.ServiceName,
		Date:         v.Date,
		StartTime:    v.StartTime,
		Amount:       v.TotalAmount.StringFixed(2),
	}
	if v.RescheduleProposedDate != nil {
		d.ProposedDate = *v.RescheduleProposedDate
	}
	if v.RescheduleProposedTime != nil {
		d.ProposedTime = *v.RescheduleProposedTime
	}
	return d
}
