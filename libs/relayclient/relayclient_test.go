package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/md-rashed-zaman/groombook/libs/changefeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAPI(srv *httptest.Server) *API {
	a := NewAPI(srv.URL, "tok")
	a.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return a
}

func TestLoadAppointmentsSendsScopeAndToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/appointments", r.URL.Path)
		assert.Equal(t, "business", r.URL.Query().Get("scope"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"items":[{"id":"a1","appointment_date":"2025-03-08","start_time":"10:00","status":"pending","pet_name":"Luna","total_amount":"65.00"}]}`))
	}))
	defer srv.Close()

	items, err := testAPI(srv).LoadAppointments(context.Background(), changefeed.BusinessScope("biz-1"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Luna", items[0].PetName)
	assert.Equal(t, "65", items[0].TotalAmount.String())
}

func TestGetRetriesServerErrorsOnly(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.URL.Query().Get("id") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"appointment not found","code":"not_found"}`))
			return
		}
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":"a1","pet_name":"Luna"}`))
	}))
	defer srv.Close()
	api := testAPI(srv)

	got, err := api.FetchAppointment(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "Luna", got.PetName)
	assert.Equal(t, int32(2), calls.Load())

	calls.Store(0)
	_, err = api.FetchAppointment(context.Background(), "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "not_found", apiErr.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNotificationCalls(t *testing.T) {
	var marked []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/notifications":
			_, _ = w.Write([]byte(`{"items":[{"id":"n1","recipient_id":"cust-1","type":"appointment_confirmed","read":false,"metadata":{"appointment_id":"a1"}}]}`))
		case "/api/v1/notifications/read":
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			marked = append(marked, body["id"])
			_, _ = w.Write([]byte(`{}`))
		case "/api/v1/notifications/read-all":
			assert.Equal(t, http.MethodPost, r.Method)
			_, _ = w.Write([]byte(`{"updated":1}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	api := testAPI(srv)

	items, err := api.LoadNotifications(context.Background(), "cust-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.JSONEq(t, `{"appointment_id":"a1"}`, string(items[0].Metadata))

	require.NoError(t, api.MarkAsRead(context.Background(), "n1"))
	require.NoError(t, api.MarkAllAsRead(context.Background()))
	assert.Equal(t, []string{"n1"}, marked)
}

// relayServer accepts websocket dials, sends one frame per connection and
// then drops the connection.
type relayServer struct {
	dials atomic.Int32
	auth  atomic.Value
}

func (s *relayServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.auth.Store(r.Header.Get("Authorization"))
	conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
	if err != nil {
		return
	}
	n := s.dials.Add(1)
	frame, _ := json.Marshal(changefeed.Message{
		Table:  changefeed.TableAppointments,
		Scope:  r.URL.Query().Get("scope"),
		Change: json.RawMessage(`{"op":"DELETE","previous":{"id":"a` + string(rune('0'+n)) + `"}}`),
	})
	_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	_ = conn.WriteMessage(websocket.TextMessage, frame)
	time.Sleep(20 * time.Millisecond)
	_ = conn.Close()
}

func TestRelayReconnectsAndSignals(t *testing.T) {
	rs := &relayServer{}
	srv := httptest.NewServer(rs)
	defer srv.Close()

	relay := NewRelay(RelayConfig{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		Token:          "tok",
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
	})

	var (
		mu         sync.Mutex
		scopes     []string
		reconnects atomic.Int32
	)
	unsubscribe := relay.Subscribe(context.Background(), changefeed.CustomerScope("cust-1"), func(m changefeed.Message) {
		mu.Lock()
		scopes = append(scopes, m.Scope)
		mu.Unlock()
	}, OnReconnect(func() { reconnects.Add(1) }))

	require.Eventually(t, func() bool { return reconnects.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
	unsubscribe()
	unsubscribe()

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(scopes), 1)
	assert.Equal(t, "customer:cust-1", scopes[0])
	assert.Equal(t, "Bearer tok", rs.auth.Load())
	assert.GreaterOrEqual(t, rs.dials.Load(), int32(2))
}

func TestRelayOnConnectRunsOnEveryDialBeforeFrames(t *testing.T) {
	rs := &relayServer{}
	srv := httptest.NewServer(rs)
	defer srv.Close()

	relay := NewRelay(RelayConfig{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
	})

	var (
		mu         sync.Mutex
		seen       []string
		reconnects atomic.Int32
	)
	record := func(s string) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	}
	unsubscribe := relay.Subscribe(context.Background(), changefeed.BusinessScope("biz-1"),
		func(changefeed.Message) { record("frame") },
		OnConnect(func() { record("connect") }),
		OnReconnect(func() { reconnects.Add(1) }),
	)
	require.Eventually(t, func() bool { return reconnects.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
	unsubscribe()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, "connect", seen[0])
	connects := 0
	for _, s := range seen {
		if s == "connect" {
			connects++
		}
	}
	assert.Equal(t, int(reconnects.Load())+1, connects)
}

func TestRelayStopsWhileServerIsDown(t *testing.T) {
	relay := NewRelay(RelayConfig{
		URL:            "ws://127.0.0.1:1/ws",
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		InitialBackoff: time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	unsubscribe := relay.Subscribe(ctx, changefeed.RecipientScope("u1"), func(changefeed.Message) {
		t.Error("no events expected")
	})
	time.Sleep(20 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		unsubscribe()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not stop")
	}
}
