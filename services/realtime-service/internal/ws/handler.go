// Package ws serves scoped change-feed subscriptions over websockets.
package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/md-rashed-zaman/groombook/libs/auth"
	"github.com/md-rashed-zaman/groombook/libs/changefeed"
	"github.com/md-rashed-zaman/groombook/libs/httpx"
	"github.com/md-rashed-zaman/groombook/services/realtime-service/internal/hub"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type Handler struct {
	hub      *hub.Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler accepts upgrades from the given origins; an empty list accepts any origin.
func NewHandler(h *hub.Hub, logger *slog.Logger, origins []string) *Handler {
	allowed := httpx.NewOriginMatcher(origins)
	return &Handler{
		hub:    h,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed.Empty() || allowed.Allows(origin)
			},
		},
	}
}

// CanSubscribe reports whether actor may watch scope. System tokens may
// watch any scope.
func CanSubscribe(actor httpx.Actor, scope changefeed.Scope) bool {
	if actor.Role == auth.RoleSystem {
		return true
	}
	switch scope.Kind {
	case changefeed.ScopeBusiness:
		return actor.Role == auth.RoleOwner && actor.BusinessID == scope.ID
	case changefeed.ScopeCustomer:
		return actor.Role == auth.RoleCustomer && actor.UserID == scope.ID
	case changefeed.ScopeRecipient:
		return actor.UserID == scope.ID
	}
	return false
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	actor, ok := httpx.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "unauthenticated")
		return
	}
	scope, err := changefeed.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if !CanSubscribe(actor, scope) {
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "forbidden")
		return
	}

	// Register before the handshake completes: once the dialer sees the
	// upgrade, every later change reaches this client.
	client := h.hub.Subscribe(scope)
	defer client.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	h.logger.Info("subscriber connected", "scope", scope.String(), "user_id", actor.UserID)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case frame, ok := <-client.Frames():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				h.logger.Warn("subscriber fell behind, closing", "scope", scope.String(), "user_id", actor.UserID)
				_ = conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			h.logger.Info("subscriber disconnected", "scope", scope.String(), "user_id", actor.UserID)
			return
		case <-r.Context().Done():
			return
		}
	}
}
