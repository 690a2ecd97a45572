package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// OriginMatcher matches browser origins against an allow-list. Entries are
// exact origins ("https://app.groombook.io"), subdomain wildcards
// ("https://*.groombook.io") or "*".
type OriginMatcher struct {
	any      bool
	exact    map[string]bool
	suffixes []wildcardOrigin
}

type wildcardOrigin struct {
	scheme string
	suffix string
}

func NewOriginMatcher(origins []string) OriginMatcher {
	m := OriginMatcher{exact: map[string]bool{}}
	for _, raw := range origins {
		o := strings.ToLower(strings.TrimRight(strings.TrimSpace(raw), "/"))
		switch {
		case o == "":
		case o == "*":
			m.any = true
		case strings.Contains(o, "://*."):
			scheme, host, _ := strings.Cut(o, "://*")
			m.suffixes = append(m.suffixes, wildcardOrigin{scheme: scheme + "://", suffix: host})
		default:
			m.exact[o] = true
		}
	}
	return m
}

// Empty reports whether no origins were configured.
func (m OriginMatcher) Empty() bool {
	return !m.any && len(m.exact) == 0 && len(m.suffixes) == 0
}

func (m OriginMatcher) Allows(origin string) bool {
	if m.any {
		return true
	}
	o := strings.ToLower(origin)
	if m.exact[o] {
		return true
	}
	for _, w := range m.suffixes {
		if strings.HasPrefix(o, w.scheme) && strings.HasSuffix(o, w.suffix) && len(o) > len(w.scheme)+len(w.suffix) {
			return true
		}
	}
	return false
}

// CORSPolicy defines the headers emitted for allowed origins.
type CORSPolicy struct {
	Origins          OriginMatcher
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DashboardCORSPolicy is the policy used for the groomer and customer dashboards.
func DashboardCORSPolicy(origins []string) CORSPolicy {
	return CORSPolicy{
		Origins:          NewOriginMatcher(origins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           10 * time.Minute,
	}
}

// WithCORS answers preflights and decorates responses for allowed origins.
// With no origins configured it does nothing.
func WithCORS(p CORSPolicy) Middleware {
	if p.Origins.Empty() {
		return func(next http.Handler) http.Handler { return next }
	}
	methods := strings.Join(p.AllowedMethods, ", ")
	headers := strings.Join(p.AllowedHeaders, ", ")
	exposed := strings.Join(p.ExposedHeaders, ", ")
	maxAge := strconv.Itoa(int(p.MaxAge.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || !p.Origins.Allows(origin) {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			if p.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if exposed != "" {
				h.Set("Access-Control-Expose-Headers", exposed)
			}

			if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)
			if p.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
