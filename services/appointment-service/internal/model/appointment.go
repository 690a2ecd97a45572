package model

import (
	"time"

	"github.com/md-rashed-zaman/groombook/libs/changefeed"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending           Status = "pending"
	StatusConfirmed         Status = "confirmed"
	StatusRejected          Status = "rejected"
	StatusCancelled         Status = "cancelled"
	StatusReschedulePending Status = "reschedule_pending"
	StatusCompleted         Status = "completed"
)

// MaxReschedules caps reschedule proposals over an appointment's lifetime.
const MaxReschedules = 1

type Appointment struct {
	ID         string `json:"id"`
	BusinessID string `json:"business_id"`
	CustomerID string `json:"customer_id"`
	PetID      string `json:"pet_id"`
	ServiceID  string `json:"service_id"`

	// Date is YYYY-MM-DD; StartTime and EndTime are HH:MM wall clock.
	Date         string `json:"appointment_date"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	OriginalDate string `json:"original_date"`
	OriginalTime string `json:"original_time"`

	Status                 Status  `json:"status"`
	RescheduleCount        int     `json:"reschedule_count"`
	RescheduleProposedDate *string `json:"reschedule_proposed_date"`
	RescheduleProposedTime *string `json:"reschedule_proposed_time"`
	RescheduleReason       *string `json:"reschedule_reason"`
	RejectionReason        *string `json:"rejection_reason"`

	ServiceName string          `json:"service_name"`
	Duration    int             `json:"duration"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Notes       *string         `json:"notes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// View is an appointment with the display fields joined from reference data.
type View struct {
	Appointment
	BusinessName    string `json:"business_name"`
	BusinessOwnerID string `json:"business_owner_id"`
	CustomerName    string `json:"customer_name"`
	PetName         string `json:"pet_name"`
}

func (a Appointment) Record() changefeed.AppointmentRecord {
	return changefeed.AppointmentRecord{
		ID:                     a.ID,
		BusinessID:             a.BusinessID,
		CustomerID:             a.CustomerID,
		PetID:                  a.PetID,
		ServiceID:              a.ServiceID,
		AppointmentDate:        a.Date,
		StartTime:              a.StartTime,
		EndTime:                a.EndTime,
		OriginalDate:           a.OriginalDate,
		OriginalTime:           a.OriginalTime,
		Status:                 string(a.Status),
		RescheduleCount:        a.RescheduleCount,
		RescheduleProposedDate: a.RescheduleProposedDate,
		RescheduleProposedTime: a.RescheduleProposedTime,
		RescheduleReason:       a.RescheduleReason,
		RejectionReason:        a.RejectionReason,
		ServiceName:            a.ServiceName,
		Duration:               a.Duration,
		TotalAmount:            a.TotalAmount,
		Notes:                  a.Notes,
		CreatedAt:              a.CreatedAt,
		UpdatedAt:              a.UpdatedAt,
	}
}

func StringPtr(s string) *string { return &s }
