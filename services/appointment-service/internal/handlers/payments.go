package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/groombook/libs/httpx"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/booking"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/notify"
	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

type PaymentRecorder interface {
	RecordPayment(ctx context.Context, p booking.Payment) (notify.Notification, error)
}

// Deduper reports whether a provider event id is seen for the first time.
// Forget releases an id whose processing failed so the provider's retry is
// handled again.
type Deduper interface {
	FirstSeen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// RedisDeduper remembers provider event ids with SETNX.
type RedisDeduper struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisDeduper(rdb redis.Cmdable, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &RedisDeduper{rdb: rdb, prefix: "groombook:stripe:evt:", ttl: ttl}
}

func (d *RedisDeduper) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	return d.rdb.SetNX(ctx, d.prefix+eventID, 1, d.ttl).Result()
}

func (d *RedisDeduper) Forget(ctx context.Context, eventID string) error {
	return d.rdb.Del(ctx, d.prefix+eventID).Err()
}

type PaymentHandler struct {
	payments  PaymentRecorder
	dedupe    Deduper
	secret    string
	tolerance time.Duration
	logger    *slog.Logger
}

func NewPaymentHandler(payments PaymentRecorder, dedupe Deduper, secret string, tolerance time.Duration, logger *slog.Logger) *PaymentHandler {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &PaymentHandler{payments: payments, dedupe: dedupe, secret: secret, tolerance: tolerance, logger: logger}
}

// StripeWebhook handles Stripe webhooks (no JWT auth; signature verification is the auth).
func (h *PaymentHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if strings.TrimSpace(h.secret) == "" {
		httpx.WriteError(w, http.StatusServiceUnavailable, "unavailable", "stripe webhook not configured")
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "missing Stripe-Signature header")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return
	}

	evt, err := webhook.ConstructEventWithOptions(body, sigHeader, h.secret, webhook.ConstructEventOptions{
		Tolerance:                h.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_signature", "invalid signature")
		return
	}

	evtType := string(evt.Type)
	h.logger.Info("payment provider event received", "provider", "stripe", "provider_event_id", evt.ID, "event_type", evtType)

	if h.dedupe != nil {
		first, err := h.dedupe.FirstSeen(r.Context(), evt.ID)
		if err != nil {
			h.logger.Warn("stripe event dedupe unavailable", "err", err)
		} else if !first {
			h.logger.Info("payment provider event duplicate ignored", "provider_event_id", evt.ID)
			writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			return
		}
	}

	payment, ok := paymentFromEvent(evt)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}

	if _, err := h.payments.RecordPayment(r.Context(), payment); err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			h.logger.Warn("stripe payment for unknown appointment", "appointment_id", payment.AppointmentID)
			writeJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
			return
		}
		h.logger.Error("record payment failed", "appointment_id", payment.AppointmentID, "err", err)
		if h.dedupe != nil {
			if ferr := h.dedupe.Forget(context.WithoutCancel(r.Context()), evt.ID); ferr != nil {
				h.logger.Warn("stripe event dedupe release failed", "provider_event_id", evt.ID, "err", ferr)
			}
		}
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "failed to record payment")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "processed"})
}

func paymentFromEvent(evt stripe.Event) (booking.Payment, bool) {
	var p booking.Payment
	switch evt.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			return p, false
		}
		p = booking.Payment{
			AppointmentID: strings.TrimSpace(session.Metadata["appointment_id"]),
			ProviderRef:   session.ID,
			AmountMinor:   session.AmountTotal,
			Currency:      string(session.Currency),
		}
	case "payment_intent.succeeded":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil {
			return p, false
		}
		p = booking.Payment{
			AppointmentID: strings.TrimSpace(intent.Metadata["appointment_id"]),
			ProviderRef:   intent.ID,
			AmountMinor:   intent.AmountReceived,
			Currency:      string(intent.Currency),
		}
		if p.AmountMinor == 0 {
			p.AmountMinor = intent.Amount
		}
	default:
		return p, false
	}
	return p, p.AppointmentID != ""
}
