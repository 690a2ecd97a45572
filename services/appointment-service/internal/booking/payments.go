package booking

import (
	"context"
	"strings"

	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/lifecycle"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/notify"
	"github.com/shopspring/decimal"
)

// Payment is a settled card payment reported by the payment provider.
type Payment struct {
	AppointmentID string
	ProviderRef   string
	AmountMinor   int64
	Currency      string
}

// RecordPayment tells the business owner that an appointment was paid for.
func (s *Service) RecordPayment(ctx context.Context, p Payment) (notify.Notification, error) {
	v, err := s.load(ctx, p.AppointmentID)
	if err != nil {
		return notify.Notification{}, err
	}

	data := notify.DataFromView(v)
	data.Amount = strings.TrimSpace(decimal.New(p.AmountMinor, -2).StringFixed(2) + " " + strings.ToUpper(p.Currency))
	title, message, err := notify.Render(model.NotificationPaymentReceived, data)
	if err != nil {
		return notify.Notification{}, err
	}

	n, err := s.notifier.Dispatch(ctx, notify.Message{
		RecipientID: recipientFor(lifecycle.PartyBusiness, v),
		BusinessID:  v.BusinessID,
		Type:        model.NotificationPaymentReceived,
		Title:       title,
		Message:     message,
		Metadata: map[string]any{
			"appointment_id": v.ID,
			"provider_ref":   p.ProviderRef,
			"amount_minor":   p.AmountMinor,
			"currency":       strings.ToLower(p.Currency),
		},
	})
	if err != nil {
		s.metrics.dispatchFailure(string(model.NotificationPaymentReceived))
		return notify.Notification{}, err
	}
	return n, nil
}
