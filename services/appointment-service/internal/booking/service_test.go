package booking

import (
	"context"
	"testing"

	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/lifecycle"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner    = Actor{UserID: ownerID, BusinessID: businessID, Party: lifecycle.PartyBusiness}
	customer = Actor{UserID: customerID, Party: lifecycle.PartyCustomer}
	system   = Actor{Party: lifecycle.PartySystem}
)

type fixture struct {
	store    *memStore
	catalog  *memCatalog
	notifier *recordingDispatcher
	svc      *Service
}

func newFixture() fixture {
	f := fixture{store: newMemStore(), catalog: newMemCatalog(), notifier: &recordingDispatcher{}}
	f.svc = newTestService(f.store, f.catalog, f.notifier)
	return f
}

func (f fixture) book(t *testing.T) model.View {
	t.Helper()
	v, err := f.svc.Create(context.Background(), customer, CreateRequest{
		BusinessID: businessID,
		ServiceID:  serviceID,
		PetID:      petID,
		Date:       "2025-03-08",
		StartTime:  "10:00",
	})
	require.NoError(t, err)
	f.notifier.sent = nil
	return v
}

func TestCreateBooksPendingAppointment(t *testing.T) {
	f := newFixture()
	v, err := f.svc.Create(context.Background(), customer, CreateRequest{
		BusinessID: businessID, ServiceID: serviceID, PetID: petID,
		Date: "2025-03-08", StartTime: "10:00", Notes: "  nervous with dryers ",
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, v.Status)
	assert.Equal(t, 0, v.RescheduleCount)
	assert.Equal(t, "11:30", v.EndTime)
	assert.Equal(t, "2025-03-08", v.OriginalDate)
	assert.Equal(t, "10:00", v.OriginalTime)
	assert.Equal(t, "Full Groom", v.ServiceName)
	assert.Equal(t, "nervous with dryers", *v.Notes)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, ownerID, f.notifier.sent[0].RecipientID)
	assert.Equal(t, model.NotificationNewAppointment, f.notifier.sent[0].Type)
}

func TestServiceEditsDoNotChangeBookedSnapshot(t *testing.T) {
	f := newFixture()
	v := f.book(t)

	svc := f.catalog.services[serviceID]
	svc.Name = "Deluxe Groom"
	svc.Price = decimal.RequireFromString("99.00")
	f.catalog.services[serviceID] = svc

	res, err := f.svc.Transition(context.Background(), owner, v.ID, lifecycle.Request{Action: lifecycle.ActionAccept})
	require.NoError(t, err)
	assert.Equal(t, "Full Groom", res.Appointment.ServiceName)
	assert.True(t, decimal.RequireFromString("65.00").Equal(res.Appointment.TotalAmount))

	got, err := f.svc.Get(context.Background(), customer, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "Full Groom", got.ServiceName)
	assert.True(t, decimal.RequireFromString("65.00").Equal(got.TotalAmount))
}

func TestCreateRejectsBadSlots(t *testing.T) {
	f := newFixture()
	f.book(t)

	tests := []struct {
		name  string
		req   CreateRequest
		check func(t *testing.T, err error)
	}{
		{"overlap", CreateRequest{Date: "2025-03-08", StartTime: "11:00"}, func(t *testing.T, err error) {
			var e *SlotUnavailableError
			assert.ErrorAs(t, err, &e)
		}},
		{"closed sunday", CreateRequest{Date: "2025-03-09", StartTime: "10:00"}, func(t *testing.T, err error) {
			var e *lifecycle.ValidationError
			assert.ErrorAs(t, err, &e)
		}},
		{"after close", CreateRequest{Date: "2025-03-08", StartTime: "17:00"}, func(t *testing.T, err error) {
			var e *lifecycle.ValidationError
			assert.ErrorAs(t, err, &e)
		}},
		{"in the past", CreateRequest{Date: "2025-02-27", StartTime: "10:00"}, func(t *testing.T, err error) {
			var e *lifecycle.ValidationError
			assert.ErrorAs(t, err, &e)
		}},
		{"someone else's pet", CreateRequest{Date: "2025-03-08", StartTime: "14:00", PetID: "pet-2"}, func(t *testing.T, err error) {
			var e *lifecycle.ValidationError
			assert.ErrorAs(t, err, &e)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			req.BusinessID = businessID
			req.ServiceID = serviceID
			if req.PetID == "" {
				req.PetID = petID
			}
			_, err := f.svc.Create(context.Background(), customer, req)
			tt.check(t, err)
		})
	}

	_, err := f.svc.Create(context.Background(), owner, CreateRequest{})
	var forbidden *ForbiddenError
	assert.ErrorAs(t, err, &forbidden)
}

func TestAcceptScenario(t *testing.T) {
	f := newFixture()
	v := f.book(t)

	res, err := f.svc.Transition(context.Background(), owner, v.ID, lifecycle.Request{Action: lifecycle.ActionAccept})
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, res.NewStatus)
	require.Len(t, res.Notifications, 1)
	assert.Equal(t, model.NotificationAppointmentConfirmed, res.Notifications[0].Type)
	assert.Equal(t, customerID, res.Notifications[0].RecipientID)
	assert.Equal(t, "Luna", res.Appointment.PetName)
}

func TestRescheduleScenarios(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	v := f.book(t)

	propose := lifecycle.Request{Action: lifecycle.ActionProposeReschedule, ProposedDate: "2025-03-10", ProposedTime: "14:00", Reason: "vet emergency"}
	res, err := f.svc.Transition(ctx, owner, v.ID, propose)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReschedulePending, res.NewStatus)
	assert.Equal(t, 1, res.Appointment.RescheduleCount)
	assert.Contains(t, f.notifier.sent[0].Message, "vet emergency")

	calls := f.store.applyCalls
	_, err = f.svc.Transition(ctx, owner, v.ID, propose)
	var already *lifecycle.AlreadyRescheduledError
	require.ErrorAs(t, err, &already)
	assert.Equal(t, calls, f.store.applyCalls)

	res, err = f.svc.Transition(ctx, customer, v.ID, lifecycle.Request{Action: lifecycle.ActionCustomerAcceptReschedule})
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, res.NewStatus)
	assert.Equal(t, "2025-03-10", res.Appointment.Date)
	assert.Equal(t, "14:00", res.Appointment.StartTime)
	assert.Equal(t, "15:30", res.Appointment.EndTime)
	require.Len(t, res.Notifications, 1)
	assert.Equal(t, ownerID, res.Notifications[0].RecipientID)
	assert.Equal(t, model.NotificationRescheduleAccepted, res.Notifications[0].Type)
}

func TestCustomerRejectRescheduleCancels(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	v := f.book(t)

	_, err := f.svc.Transition(ctx, owner, v.ID, lifecycle.Request{Action: lifecycle.ActionProposeReschedule, ProposedDate: "2025-03-10", ProposedTime: "14:00"})
	require.NoError(t, err)

	res, err := f.svc.Transition(ctx, customer, v.ID, lifecycle.Request{Action: lifecycle.ActionCustomerRejectReschedule})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, res.NewStatus)

	_, err = f.svc.Transition(ctx, owner, v.ID, lifecycle.Request{Action: lifecycle.ActionAccept})
	var invalid *lifecycle.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
}

func TestTransitionAuthorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	v := f.book(t)

	tests := []struct {
		name   string
		actor  Actor
		action lifecycle.Action
	}{
		{"customer cannot accept", customer, lifecycle.ActionAccept},
		{"owner cannot answer for customer", owner, lifecycle.ActionCustomerRejectReschedule},
		{"other business", Actor{UserID: "owner-2", BusinessID: "biz-2", Party: lifecycle.PartyBusiness}, lifecycle.ActionAccept},
		{"other customer", Actor{UserID: "cust-2", Party: lifecycle.PartyCustomer}, lifecycle.ActionCustomerAcceptReschedule},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Transition(ctx, tt.actor, v.ID, lifecycle.Request{Action: tt.action})
			var forbidden *ForbiddenError
			require.ErrorAs(t, err, &forbidden)
		})
	}
	assert.Zero(t, f.store.applyCalls)

	res, err := f.svc.Transition(ctx, system, v.ID, lifecycle.Request{Action: lifecycle.ActionComplete})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, res.NewStatus)
}

func TestDispatchFailureDoesNotUndoTransition(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture()
	f.svc.metrics = NewMetrics(reg)
	v := f.book(t)
	f.notifier.err = errDown

	res, err := f.svc.Transition(context.Background(), owner, v.ID, lifecycle.Request{Action: lifecycle.ActionReject, Reason: ""})
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, res.NewStatus)
	assert.Empty(t, res.Notifications)

	stored, err := f.store.GetView(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, stored.Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.svc.metrics.DispatchFailures.WithLabelValues("appointment_rejected")))
}

func TestStaleWriteSurfacesCurrentState(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	v := f.book(t)

	// Another session confirms the appointment between our read and write.
	f.store.beforeApply = func(id string) {
		f.store.beforeApply = nil
		cur, _ := f.store.GetView(ctx, id)
		cur.Status = model.StatusConfirmed
		f.store.put(cur.Appointment)
	}
	_, err := f.svc.Transition(ctx, owner, v.ID, lifecycle.Request{Action: lifecycle.ActionProposeReschedule, ProposedDate: "2025-03-10", ProposedTime: "14:00"})
	var invalid *lifecycle.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, model.StatusConfirmed, invalid.From)

	stored, _ := f.store.GetView(ctx, v.ID)
	assert.Equal(t, 0, stored.RescheduleCount)
	assert.Empty(t, f.notifier.sent)
}

func TestStaleWriteWithoutVisibleChangeIsConflict(t *testing.T) {
	f := newFixture()
	v := f.book(t)
	f.store.applyErr = storage.ErrStaleState

	_, err := f.svc.Transition(context.Background(), owner, v.ID, lifecycle.Request{Action: lifecycle.ActionAccept})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Empty(t, f.notifier.sent)
}

func TestPersistenceErrorIsRetryable(t *testing.T) {
	f := newFixture()
	v := f.book(t)
	f.store.applyErr = errDown

	_, err := f.svc.Transition(context.Background(), owner, v.ID, lifecycle.Request{Action: lifecycle.ActionAccept})
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Retryable())
	assert.ErrorIs(t, err, errDown)
	assert.Empty(t, f.notifier.sent)

	f.store.applyErr = nil
	res, err := f.svc.Transition(context.Background(), owner, v.ID, lifecycle.Request{Action: lifecycle.ActionAccept})
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, res.NewStatus)
}

func TestOverlapConstraintSurfacesAsSlotUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	f.store.createErr = storage.ErrSlotTaken
	_, err := f.svc.Create(ctx, customer, CreateRequest{
		BusinessID: businessID, ServiceID: serviceID, PetID: petID,
		Date: "2025-03-08", StartTime: "13:00",
	})
	var slot *SlotUnavailableError
	require.ErrorAs(t, err, &slot)
	assert.Equal(t, "13:00", slot.StartTime)
	assert.Empty(t, f.notifier.sent)

	f.store.createErr = nil
	v := f.book(t)
	_, err = f.svc.Transition(ctx, owner, v.ID, lifecycle.Request{Action: lifecycle.ActionProposeReschedule, ProposedDate: "2025-03-10", ProposedTime: "14:00"})
	require.NoError(t, err)
	f.notifier.sent = nil

	f.store.applyErr = storage.ErrSlotTaken
	_, err = f.svc.Transition(ctx, customer, v.ID, lifecycle.Request{Action: lifecycle.ActionCustomerAcceptReschedule})
	require.ErrorAs(t, err, &slot)
	assert.Equal(t, "2025-03-10", slot.Date)
	assert.Empty(t, f.notifier.sent)
}

func TestTransitionUnknownAppointment(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Transition(context.Background(), owner, "missing", lifecycle.Request{Action: lifecycle.ActionAccept})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetHidesOtherAccounts(t *testing.T) {
	f := newFixture()
	v := f.book(t)

	_, err := f.svc.Get(context.Background(), Actor{UserID: "cust-2", Party: lifecycle.PartyCustomer}, v.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := f.svc.Get(context.Background(), owner, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.ID, got.ID)
}

func TestLists(t *testing.T) {
	f := newFixture()
	f.book(t)

	byBusiness, err := f.svc.ListForBusiness(context.Background(), owner)
	require.NoError(t, err)
	assert.Len(t, byBusiness, 1)

	byCustomer, err := f.svc.ListForCustomer(context.Background(), customer)
	require.NoError(t, err)
	assert.Len(t, byCustomer, 1)

	_, err = f.svc.ListForBusiness(context.Background(), customer)
	var forbidden *ForbiddenError
	assert.ErrorAs(t, err, &forbidden)
}

func TestAvailableSlotsExcludeBookings(t *testing.T) {
	f := newFixture()
	f.book(t)

	slots, err := f.svc.AvailableSlots(context.Background(), businessID, serviceID, "2025-03-08")
	require.NoError(t, err)
	require.NotEmpty(t, slots)
	assert.Equal(t, "11:30", slots[0])
	assert.NotContains(t, slots, "09:00")
	assert.NotContains(t, slots, "10:00")
	assert.Equal(t, "16:30", slots[len(slots)-1])

	closed, err := f.svc.AvailableSlots(context.Background(), businessID, serviceID, "2025-03-09")
	require.NoError(t, err)
	assert.Empty(t, closed)
}

func TestRecordPaymentNotifiesOwner(t *testing.T) {
	f := newFixture()
	v := f.book(t)

	n, err := f.svc.RecordPayment(context.Background(), Payment{AppointmentID: v.ID, ProviderRef: "pi_123", AmountMinor: 6500, Currency: "usd"})
	require.NoError(t, err)
	assert.Equal(t, ownerID, n.RecipientID)
	assert.Equal(t, model.NotificationPaymentReceived, n.Type)
	assert.Contains(t, n.Message, "65.00 USD")

	_, err = f.svc.RecordPayment(context.Background(), Payment{AppointmentID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}
