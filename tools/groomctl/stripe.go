package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

type stripeFlags struct {
	secret        string
	eventType     string
	appointmentID string
	amount        int64
	currency      string
}

func newStripeCmd(g *globalFlags) *cobra.Command {
	f := &stripeFlags{}
	cmd := &cobra.Command{
		Use:   "stripe-sim",
		Short: "Send a signed Stripe payment webhook for an appointment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(f.secret) == "" {
				return fmt.Errorf("--secret (or STRIPE_WEBHOOK_SECRET) is required")
			}
			now := time.Now().UTC()
			payload, err := buildStripeEvent("evt_test_"+uuid.NewString(), now, f)
			if err != nil {
				return err
			}
			signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
				Payload:   payload,
				Secret:    f.secret,
				Timestamp: now,
				Scheme:    "v1",
			})

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost,
				strings.TrimRight(g.apiURL, "/")+"/api/v1/webhooks/stripe", bytes.NewReader(payload))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Stripe-Signature", signed.Header)

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "status=%d %s\n", resp.StatusCode, strings.TrimSpace(string(body)))
			return err
		},
	}
	cmd.Flags().StringVar(&f.secret, "secret", getenv("STRIPE_WEBHOOK_SECRET", ""), "webhook signing secret (whsec_...)")
	cmd.Flags().StringVar(&f.eventType, "type", "checkout.session.completed", "checkout.session.completed or payment_intent.succeeded")
	cmd.Flags().StringVar(&f.appointmentID, "appointment", "", "appointment id carried in metadata (required)")
	cmd.Flags().Int64Var(&f.amount, "amount", 6500, "amount in minor units")
	cmd.Flags().StringVar(&f.currency, "currency", "usd", "ISO currency code")
	_ = cmd.MarkFlagRequired("appointment")
	return cmd
}

func buildStripeEvent(eventID string, t time.Time, f *stripeFlags) ([]byte, error) {
	metadata := map[string]any{"appointment_id": f.appointmentID}
	var object map[string]any
	switch f.eventType {
	case "checkout.session.completed":
		object = map[string]any{
			"id":           "cs_test_" + eventID,
			"object":       "checkout.session",
			"amount_total": f.amount,
			"currency":     f.currency,
			"metadata":     metadata,
		}
	case "payment_intent.succeeded":
		object = map[string]any{
			"id":              "pi_test_" + eventID,
			"object":          "payment_intent",
			"amount":          f.amount,
			"amount_received": f.amount,
			"currency":        f.currency,
			"metadata":        metadata,
		}
	default:
		return nil, fmt.Errorf("unsupported event type: %s", f.eventType)
	}
	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     t.Unix(),
		"type":        f.eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": object},
	})
}
