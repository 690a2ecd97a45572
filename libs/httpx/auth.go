package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/groombook/libs/auth"
)

// Actor is the verified caller of a request.
type Actor struct {
	UserID     string
	BusinessID string
	Role       string
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKeyActor).(Actor)
	return a, ok
}

func ContextWithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKeyActor, a)
}

// RequireAuth verifies an HS256 bearer token and stores the Actor in the
// request context. When allowQueryToken is set, an `access_token` query
// parameter is accepted too (browsers cannot set headers on websocket dials).
func RequireAuth(secret string, allowQueryToken bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok && allowQueryToken {
				token = strings.TrimSpace(r.URL.Query().Get("access_token"))
				ok = token != ""
			}
			if !ok {
				WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing or invalid Authorization header")
				return
			}

			claims, err := auth.Verify(token, secret)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "unauthenticated", "invalid token")
				return
			}

			ctx := ContextWithActor(r.Context(), Actor{
				UserID:     claims.Subject,
				BusinessID: claims.BusinessID,
				Role:       claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireRole(roles ...string) Middleware {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				WriteError(w, http.StatusUnauthorized, "unauthenticated", "unauthenticated")
				return
			}
			if _, ok := allowed[actor.Role]; !ok {
				WriteError(w, http.StatusForbidden, "forbidden", "role not permitted")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
