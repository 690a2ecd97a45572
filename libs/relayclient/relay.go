// Package relayclient talks to the realtime relay and the appointment API
// on behalf of a dashboard session.
package relayclient

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/md-rashed-zaman/groombook/libs/changefeed"
)

// Unsubscribe stops a subscription and waits for its reader to exit.
type Unsubscribe func()

type SubscribeOptions struct {
	// OnConnect runs on the reader goroutine after every successful dial,
	// the first included, before any frame of that connection is delivered.
	// The relay registers the subscription before completing the upgrade, so
	// a reload here cannot miss a change.
	OnConnect func()
	// OnReconnect runs after every successful reconnect (not the first dial).
	// Events sent while disconnected are lost.
	OnReconnect func()
}

type SubscribeOption func(*SubscribeOptions)

func OnConnect(fn func()) SubscribeOption {
	return func(o *SubscribeOptions) { o.OnConnect = fn }
}

func OnReconnect(fn func()) SubscribeOption {
	return func(o *SubscribeOptions) { o.OnReconnect = fn }
}

type RelayConfig struct {
	// URL is the relay websocket endpoint, e.g. ws://localhost:8090/ws.
	URL    string
	Token  string
	Logger *slog.Logger

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Dialer         *websocket.Dialer
}

type Relay struct {
	cfg RelayConfig
}

func NewRelay(cfg RelayConfig) *Relay {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Relay{cfg: cfg}
}

// Subscribe streams scope's change frames to onEvent from a background
// goroutine until ctx ends or the returned Unsubscribe is called.
func (r *Relay) Subscribe(ctx context.Context, scope changefeed.Scope, onEvent func(changefeed.Message), opts ...SubscribeOption) Unsubscribe {
	var o SubscribeOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.run(ctx, scope, onEvent, o)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}

func (r *Relay) run(ctx context.Context, scope changefeed.Scope, onEvent func(changefeed.Message), o SubscribeOptions) {
	logger := r.cfg.Logger.With("scope", scope.String())
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialBackoff
	b.MaxInterval = r.cfg.MaxBackoff

	connected := false
	for {
		conn, err := r.dial(ctx, scope)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := b.NextBackOff()
			logger.Warn("relay dial failed", "err", err, "retry_in", wait)
			if !sleep(ctx, wait) {
				return
			}
			continue
		}
		b.Reset()
		if o.OnConnect != nil {
			o.OnConnect()
		}
		if connected && o.OnReconnect != nil {
			o.OnReconnect()
		}
		connected = true

		err = readLoop(ctx, conn, onEvent)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Warn("relay connection lost", "err", err)
	}
}

func (r *Relay) dial(ctx context.Context, scope changefeed.Scope) (*websocket.Conn, error) {
	u, err := url.Parse(r.cfg.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("scope", scope.String())
	u.RawQuery = q.Encode()

	header := http.Header{}
	if strings.TrimSpace(r.cfg.Token) != "" {
		header.Set("Authorization", "Bearer "+r.cfg.Token)
	}
	conn, resp, err := r.cfg.Dialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

func readLoop(ctx context.Context, conn *websocket.Conn, onEvent func(changefeed.Message)) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg changefeed.Message
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		onEvent(msg)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
