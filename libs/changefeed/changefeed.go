// Package changefeed defines the row-change events published for the
// appointments and notifications tables and the scopes they are routed by.
//
// Each event is a tagged union on Op:
//
//	{"op":"INSERT","record":{...}}
//	{"op":"UPDATE","record":{...},"previous":{...}}
//	{"op":"DELETE","previous":{...}}
//
// Decoders validate events at the boundary so consumers never see a
// half-formed change.
package changefeed

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicAppointments  = "appointments.changes.v1"
	TopicNotifications = "notifications.changes.v1"

	TableAppointments  = "appointments"
	TableNotifications = "notifications"
)

type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

func (o Op) Valid() bool {
	switch o {
	case OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}

var ErrInvalidChange = errors.New("invalid change event")

// AppointmentRecord mirrors an appointments row. Column names are the JSON keys.
type AppointmentRecord struct {
	ID                     string          `json:"id"`
	BusinessID             string          `json:"business_id"`
	CustomerID             string          `json:"customer_id"`
	PetID                  string          `json:"pet_id"`
	ServiceID              string          `json:"service_id"`
	AppointmentDate        string          `json:"appointment_date"`
	StartTime              string          `json:"start_time"`
	EndTime                string          `json:"end_time"`
	OriginalDate           string          `json:"original_date"`
	OriginalTime           string          `json:"original_time"`
	Status                 string          `json:"status"`
	RescheduleCount        int             `json:"reschedule_count"`
	RescheduleProposedDate *string         `json:"reschedule_proposed_date"`
	RescheduleProposedTime *string         `json:"reschedule_proposed_time"`
	RescheduleReason       *string         `json:"reschedule_reason"`
	RejectionReason        *string         `json:"rejection_reason"`
	ServiceName            string          `json:"service_name"`
	Duration               int             `json:"duration"`
	TotalAmount            decimal.Decimal `json:"total_amount"`
	Notes                  *string         `json:"notes"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// NotificationRecord mirrors a notifications row.
type NotificationRecord struct {
	ID          string          `json:"id"`
	RecipientID string          `json:"recipient_id"`
	BusinessID  *string         `json:"business_id"`
	Type        string          `json:"type"`
	Title       string          `json:"title"`
	Message     string          `json:"message"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Read        bool            `json:"read"`
	CreatedAt   time.Time       `json:"created_at"`
}

type AppointmentChange struct {
	Op       Op                 `json:"op"`
	Record   *AppointmentRecord `json:"record,omitempty"`
	Previous *AppointmentRecord `json:"previous,omitempty"`
}

type NotificationChange struct {
	Op       Op                  `json:"op"`
	Record   *NotificationRecord `json:"record,omitempty"`
	Previous *NotificationRecord `json:"previous,omitempty"`
}

// Subject returns the row the change is about: the new record when present,
// otherwise the previous one.
func (c AppointmentChange) Subject() *AppointmentRecord {
	if c.Record != nil {
		return c.Record
	}
	return c.Previous
}

func (c NotificationChange) Subject() *NotificationRecord {
	if c.Record != nil {
		return c.Record
	}
	return c.Previous
}

var knownStatuses = map[string]bool{
	"pending":            true,
	"confirmed":          true,
	"rejected":           true,
	"cancelled":          true,
	"reschedule_pending": true,
	"completed":          true,
}

var knownNotificationTypes = map[string]bool{
	"new_appointment":       true,
	"appointment_confirmed": true,
	"appointment_rejected":  true,
	"reschedule_proposed":   true,
	"reschedule_accepted":   true,
	"reschedule_rejected":   true,
	"appointment_completed": true,
	"payment_received":      true,
	"review":                true,
}

func KnownStatus(s string) bool           { return knownStatuses[s] }
func KnownNotificationType(t string) bool { return knownNotificationTypes[t] }

func (c AppointmentChange) Validate() error {
	if err := checkShape(c.Op, c.Record != nil, c.Previous != nil); err != nil {
		return err
	}
	for _, r := range []*AppointmentRecord{c.Record, c.Previous} {
		if r == nil {
			continue
		}
		if r.ID == "" {
			return fmt.Errorf("%w: appointment id is empty", ErrInvalidChange)
		}
	}
	if c.Record != nil && !KnownStatus(c.Record.Status) {
		return fmt.Errorf("%w: unknown appointment status %q", ErrInvalidChange, c.Record.Status)
	}
	return nil
}

func (c NotificationChange) Validate() error {
	if err := checkShape(c.Op, c.Record != nil, c.Previous != nil); err != nil {
		return err
	}
	for _, r := range []*NotificationRecord{c.Record, c.Previous} {
		if r == nil {
			continue
		}
		if r.ID == "" {
			return fmt.Errorf("%w: notification id is empty", ErrInvalidChange)
		}
	}
	if c.Record != nil {
		if c.Record.RecipientID == "" {
			return fmt.Errorf("%w: notification recipient is empty", ErrInvalidChange)
		}
		if !KnownNotificationType(c.Record.Type) {
			return fmt.Errorf("%w: unknown notification type %q", ErrInvalidChange, c.Record.Type)
		}
	}
	return nil
}

func checkShape(op Op, hasRecord, hasPrevious bool) error {
	switch op {
	case OpInsert:
		if !hasRecord {
			return fmt.Errorf("%w: INSERT without record", ErrInvalidChange)
		}
	case OpUpdate:
		if !hasRecord || !hasPrevious {
			return fmt.Errorf("%w: UPDATE needs record and previous", ErrInvalidChange)
		}
	case OpDelete:
		if !hasPrevious {
			return fmt.Errorf("%w: DELETE without previous", ErrInvalidChange)
		}
	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidChange, op)
	}
	return nil
}

func DecodeAppointmentChange(data []byte) (AppointmentChange, error) {
	var c AppointmentChange
	if err := json.Unmarshal(data, &c); err != nil {
		return AppointmentChange{}, fmt.Errorf("%w: %v", ErrInvalidChange, err)
	}
	if err := c.Validate(); err != nil {
		return AppointmentChange{}, err
	}
	return c, nil
}

func DecodeNotificationChange(data []byte) (NotificationChange, error) {
	var c NotificationChange
	if err := json.Unmarshal(data, &c); err != nil {
		return NotificationChange{}, fmt.Errorf("%w: %v", ErrInvalidChange, err)
	}
	if err := c.Validate(); err != nil {
		return NotificationChange{}, err
	}
	return c, nil
}
