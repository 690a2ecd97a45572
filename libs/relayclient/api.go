package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/md-rashed-zaman/groombook/libs/changefeed"
	"github.com/md-rashed-zaman/groombook/libs/projection"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// APIError is a non-2xx answer from the appointment API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api %d: %s", e.Status, e.Message)
}

// API is a bearer-authenticated client for the appointment API. It serves
// as the loader for both projection caches.
type API struct {
	base  string
	token string
	http  *http.Client
	tries uint

	newBackOff func() backoff.BackOff
}

func NewAPI(baseURL, token string) *API {
	return &API{
		base:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tries: 3,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

type itemsEnvelope[T any] struct {
	Items []T `json:"items"`
}

func (a *API) LoadAppointments(ctx context.Context, scope changefeed.Scope) ([]projection.Appointment, error) {
	var out itemsEnvelope[projection.Appointment]
	q := url.Values{"scope": {string(scope.Kind)}}
	if err := a.get(ctx, "/api/v1/appointments?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (a *API) FetchAppointment(ctx context.Context, id string) (projection.Appointment, error) {
	var out projection.Appointment
	q := url.Values{"id": {id}}
	err := a.get(ctx, "/api/v1/appointments/view?"+q.Encode(), &out)
	return out, err
}

// LoadNotifications returns the caller's inbox; the recipient is implied by
// the token.
func (a *API) LoadNotifications(ctx context.Context, _ string) ([]projection.Notification, error) {
	var out itemsEnvelope[projection.Notification]
	if err := a.get(ctx, "/api/v1/notifications?limit=200", &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (a *API) MarkAsRead(ctx context.Context, id string) error {
	return a.post(ctx, "/api/v1/notifications/read", map[string]string{"id": id}, nil)
}

func (a *API) MarkAllAsRead(ctx context.Context) error {
	return a.post(ctx, "/api/v1/notifications/read-all", struct{}{}, nil)
}

type TransitionRequest struct {
	AppointmentID string `json:"appointment_id"`
	Action        string `json:"action"`
	Reason        string `json:"reason,omitempty"`
	ProposedDate  string `json:"proposed_date,omitempty"`
	ProposedTime  string `json:"proposed_time,omitempty"`
}

type TransitionResult struct {
	Appointment   projection.Appointment    `json:"appointment"`
	NewStatus     string                    `json:"new_status"`
	Notifications []projection.Notification `json:"notifications"`
}

// Transition is not retried: the server re-checks the guard, so callers may
// resubmit after a PersistenceError themselves.
func (a *API) Transition(ctx context.Context, req TransitionRequest) (TransitionResult, error) {
	var out TransitionResult
	err := a.post(ctx, "/api/v1/appointments/transition", req, &out)
	return out, err
}

// get retries transport errors and 5xx answers with exponential backoff.
func (a *API) get(ctx context.Context, path string, dst any) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := a.do(ctx, http.MethodGet, path, nil, dst)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status < 500 {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(a.newBackOff()), backoff.WithMaxTries(a.tries))
	return err
}

func (a *API) post(ctx context.Context, path string, body, dst any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return a.do(ctx, http.MethodPost, path, raw, dst)
}

func (a *API) do(ctx context.Context, method, path string, body []byte, dst any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var body struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(raw, &body) == nil && body.Error != "" {
			apiErr.Message, apiErr.Code = body.Error, body.Code
		}
		return apiErr
	}
	if dst == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
