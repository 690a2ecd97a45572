package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/groombook/libs/changefeed"
	"github.com/md-rashed-zaman/groombook/libs/db"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/outbox"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrStaleState means the row no longer matched the status and reschedule
	// count the caller observed, so nothing was written.
	ErrStaleState = errors.New("appointment changed since it was read")
	// ErrSlotTaken means the write would overlap another active booking.
	ErrSlotTaken = errors.New("slot overlaps another booking")
)

const appointmentColumns = `
	a.id::text, a.business_id::text, a.customer_id::text, a.pet_id::text, a.service_id::text,
	to_char(a.appointment_date, 'YYYY-MM-DD'), to_char(a.start_time, 'HH24:MI'), to_char(a.end_time, 'HH24:MI'),
	to_char(a.original_date, 'YYYY-MM-DD'), to_char(a.original_time, 'HH24:MI'),
	a.status, a.reschedule_count,
	to_char(a.reschedule_proposed_date, 'YYYY-MM-DD'), to_char(a.reschedule_proposed_time, 'HH24:MI'),
	a.reschedule_reason, a.rejection_reason,
	a.service_name, a.duration, a.total_amount::text, a.notes, a.created_at, a.updated_at`

const viewSelect = `
	SELECT ` + appointmentColumns + `, b.name, b.owner_id::text, c.full_name, p.name
	FROM appointments a
	JOIN businesses b ON b.id = a.business_id
	JOIN customers c ON c.id = a.customer_id
	JOIN pets p ON p.id = a.pet_id`

const transitionSQL = `
	UPDATE appointments AS a
	SET status = $4,
		appointment_date = $5::date,
		start_time = $6::time,
		end_time = $7::time,
		reschedule_count = $8,
		reschedule_proposed_date = $9::date,
		reschedule_proposed_time = $10::time,
		reschedule_reason = $11,
		rejection_reason = $12,
		updated_at = now()
	WHERE a.id = $1 AND a.status = $2 AND a.reschedule_count = $3
	RETURNING ` + appointmentColumns

// activeStatuses hold a slot on the calendar.
var activeStatuses = []string{
	string(model.StatusPending),
	string(model.StatusConfirmed),
	string(model.StatusReschedulePending),
}

type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, ob *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: ob}
}

// Create inserts a new appointment and its INSERT change event.
func (r *AppointmentRepository) Create(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	var created model.Appointment
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		created, err = scanAppointment(tx.QueryRow(ctx, `
			INSERT INTO appointments AS a
				(business_id, customer_id, pet_id, service_id,
				 appointment_date, start_time, end_time, original_date, original_time,
				 status, service_name, duration, total_amount, notes)
			VALUES ($1, $2, $3, $4, $5::date, $6::time, $7::time, $5::date, $6::time, $8, $9, $10, $11::numeric, $12)
			RETURNING `+appointmentColumns,
			appt.BusinessID, appt.CustomerID, appt.PetID, appt.ServiceID,
			appt.Date, appt.StartTime, appt.EndTime,
			string(appt.Status), appt.ServiceName, appt.Duration, appt.TotalAmount.String(), appt.Notes,
		))
		if err != nil {
			return err
		}
		rec := created.Record()
		return r.emit(ctx, tx, changefeed.AppointmentChange{Op: changefeed.OpInsert, Record: &rec})
	})
	if db.IsExclusionViolation(err) {
		return model.Appointment{}, ErrSlotTaken
	}
	return created, err
}

func (r *AppointmentRepository) GetView(ctx context.Context, id string) (model.View, error) {
	v, err := scanView(r.pool.QueryRow(ctx, viewSelect+` WHERE a.id = $1`, id))
	if db.IsNotFound(err) {
		return model.View{}, ErrNotFound
	}
	return v, err
}

// ApplyTransition writes next over current in a single conditional UPDATE
// guarded on the status and reschedule count the caller read. The snapshot
// columns (service_name, duration, total_amount) are never written here.
func (r *AppointmentRepository) ApplyTransition(ctx context.Context, current, next model.Appointment) (model.Appointment, error) {
	var updated model.Appointment
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		updated, err = scanAppointment(tx.QueryRow(ctx, transitionSQL,
			current.ID, string(current.Status), current.RescheduleCount,
			string(next.Status), next.Date, next.StartTime, next.EndTime,
			next.RescheduleCount, next.RescheduleProposedDate, next.RescheduleProposedTime,
			next.RescheduleReason, next.RejectionReason,
		))
		if db.IsNotFound(err) {
			return ErrStaleState
		}
		if err != nil {
			return err
		}
		prev := current.Record()
		rec := updated.Record()
		return r.emit(ctx, tx, changefeed.AppointmentChange{Op: changefeed.OpUpdate, Record: &rec, Previous: &prev})
	})
	if db.IsExclusionViolation(err) {
		return model.Appointment{}, ErrSlotTaken
	}
	return updated, err
}

func (r *AppointmentRepository) ListForBusiness(ctx context.Context, businessID string) ([]model.View, error) {
	return r.listViews(ctx, viewSelect+` WHERE a.business_id = $1 ORDER BY a.appointment_date, a.start_time`, businessID)
}

func (r *AppointmentRepository) ListForCustomer(ctx context.Context, customerID string) ([]model.View, error) {
	return r.listViews(ctx, viewSelect+` WHERE a.customer_id = $1 ORDER BY a.appointment_date, a.start_time`, customerID)
}

// BookedIntervals returns the slots held on date by appointments that still
// occupy the calendar.
func (r *AppointmentRepository) BookedIntervals(ctx context.Context, businessID, date string) ([]model.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI')
		FROM appointments
		WHERE business_id = $1 AND appointment_date = $2::date AND status = ANY($3)
		ORDER BY start_time
	`, businessID, date, activeStatuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Interval
	for rows.Next() {
		var iv model.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *AppointmentRepository) listViews(ctx context.Context, query string, args ...any) ([]model.View, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.View{}
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *AppointmentRepository) emit(ctx context.Context, tx pgx.Tx, change changefeed.AppointmentChange) error {
	evt, err := outbox.AppointmentEvent(change)
	if err != nil {
		return err
	}
	return r.outbox.Insert(ctx, tx, evt)
}

func appointmentDest(a *model.Appointment, amount *string) []any {
	return []any{
		&a.ID, &a.BusinessID, &a.CustomerID, &a.PetID, &a.ServiceID,
		&a.Date, &a.StartTime, &a.EndTime,
		&a.OriginalDate, &a.OriginalTime,
		&a.Status, &a.RescheduleCount,
		&a.RescheduleProposedDate, &a.RescheduleProposedTime,
		&a.RescheduleReason, &a.RejectionReason,
		&a.ServiceName, &a.Duration, amount, &a.Notes, &a.CreatedAt, &a.UpdatedAt,
	}
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		a      model.Appointment
		amount string
	)
	if err := row.Scan(appointmentDest(&a, &amount)...); err != nil {
		return model.Appointment{}, err
	}
	return a, parseAmount(&a, amount)
}

func scanView(row pgx.Row) (model.View, error) {
	var (
		v      model.View
		amount string
	)
	dest := append(appointmentDest(&v.Appointment, &amount), &v.BusinessName, &v.BusinessOwnerID, &v.CustomerName, &v.PetName)
	if err := row.Scan(dest...); err != nil {
		return model.View{}, err
	}
	return v, parseAmount(&v.Appointment, amount)
}

func parseAmount(a *model.Appointment, raw string) error {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("total_amount %q: %w", raw, err)
	}
	a.TotalAmount = d
	return nil
}
