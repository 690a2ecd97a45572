// Package session wires a signed-in dashboard to its caches and the relay.
// Open on login, Close on logout; nothing is global.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/md-rashed-zaman/groombook/libs/auth"
	"github.com/md-rashed-zaman/groombook/libs/changefeed"
	"github.com/md-rashed-zaman/groombook/libs/projection"
	"github.com/md-rashed-zaman/groombook/libs/relayclient"
)

var ErrClosed = errors.New("session closed")

// Identity is who the session acts for.
type Identity struct {
	UserID     string
	BusinessID string
	Role       string
}

// AppointmentScope is the feed a dashboard for this identity watches.
func (id Identity) AppointmentScope() (changefeed.Scope, error) {
	switch id.Role {
	case auth.RoleOwner:
		if id.BusinessID == "" {
			return changefeed.Scope{}, errors.New("owner session needs a business id")
		}
		return changefeed.BusinessScope(id.BusinessID), nil
	case auth.RoleCustomer:
		return changefeed.CustomerScope(id.UserID), nil
	}
	return changefeed.Scope{}, fmt.Errorf("no dashboard for role %q", id.Role)
}

// Backend loads and mutates server state for the caches.
type Backend interface {
	projection.AppointmentLoader
	projection.NotificationAPI
}

type Relay interface {
	Subscribe(ctx context.Context, scope changefeed.Scope, onEvent func(changefeed.Message), opts ...relayclient.SubscribeOption) relayclient.Unsubscribe
}

type Config struct {
	Identity Identity
	Logger   *slog.Logger

	// APIBaseURL, RelayURL and Token build the default Backend and Relay.
	APIBaseURL string
	RelayURL   string
	Token      string

	Backend Backend
	Relay   Relay
}

type Session struct {
	identity Identity
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc

	mu            sync.RWMutex
	appointments  *projection.AppointmentCache
	notifications *projection.NotificationCache
	unsubscribe   []relayclient.Unsubscribe
	closed        bool
}

// Open warms both caches and subscribes them to the relay. The session
// lives until Close or until ctx ends.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	scope, err := cfg.Identity.AppointmentScope()
	if err != nil {
		return nil, err
	}
	if cfg.Backend == nil {
		cfg.Backend = relayclient.NewAPI(cfg.APIBaseURL, cfg.Token)
	}
	if cfg.Relay == nil {
		cfg.Relay = relayclient.NewRelay(relayclient.RelayConfig{URL: cfg.RelayURL, Token: cfg.Token, Logger: cfg.Logger})
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		identity:      cfg.Identity,
		logger:        cfg.Logger.With("user_id", cfg.Identity.UserID, "scope", scope.String()),
		ctx:           sctx,
		cancel:        cancel,
		appointments:  projection.NewAppointmentCache(scope, cfg.Backend),
		notifications: projection.NewNotificationCache(cfg.Identity.UserID, cfg.Backend),
	}

	if err := s.Resync(ctx); err != nil {
		cancel()
		return nil, err
	}

	// Each connection reloads its cache once it is registered, which covers
	// changes committed between the load above and the first dial.
	s.unsubscribe = append(s.unsubscribe,
		cfg.Relay.Subscribe(sctx, scope, s.onAppointmentEvent, relayclient.OnConnect(s.reloadAppointments)),
		cfg.Relay.Subscribe(sctx, s.notifications.Scope(), s.onNotificationEvent, relayclient.OnConnect(s.reloadNotifications)),
	)
	s.logger.Info("session opened", "appointments", s.appointments.Len())
	return s, nil
}

func (s *Session) Identity() Identity { return s.identity }

// Appointments returns the appointment cache, or nil once closed.
func (s *Session) Appointments() *projection.AppointmentCache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appointments
}

func (s *Session) Notifications() *projection.NotificationCache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notifications
}

// Resync reloads both caches from the API.
func (s *Session) Resync(ctx context.Context) error {
	appts, notes := s.Appointments(), s.Notifications()
	if appts == nil || notes == nil {
		return ErrClosed
	}
	if err := appts.Reload(ctx); err != nil {
		return err
	}
	return notes.Reload(ctx)
}

// Close unsubscribes from the relay and drops the caches. Safe to call twice.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	s.cancel()
	for _, u := range unsubscribe {
		u()
	}

	s.mu.Lock()
	s.appointments = nil
	s.notifications = nil
	s.mu.Unlock()
	s.logger.Info("session closed")
}

func (s *Session) onAppointmentEvent(m changefeed.Message) {
	c := s.Appointments()
	if c == nil || m.Table != changefeed.TableAppointments {
		return
	}
	if err := c.Apply(s.ctx, m.Change); err != nil {
		s.logger.Warn("appointment event not applied", "err", err)
	}
}

func (s *Session) onNotificationEvent(m changefeed.Message) {
	c := s.Notifications()
	if c == nil || m.Table != changefeed.TableNotifications {
		return
	}
	if err := c.Apply(s.ctx, m.Change); err != nil {
		s.logger.Warn("notification event not applied", "err", err)
	}
}

func (s *Session) reloadAppointments() {
	c := s.Appointments()
	if c == nil {
		return
	}
	if err := c.Reload(s.ctx); err != nil && s.ctx.Err() == nil {
		s.logger.Warn("appointment reload after connect failed", "err", err)
	}
}

func (s *Session) reloadNotifications() {
	c := s.Notifications()
	if c == nil {
		return
	}
	if err := c.Reload(s.ctx); err != nil && s.ctx.Err() == nil {
		s.logger.Warn("notification reload after connect failed", "err", err)
	}
}
