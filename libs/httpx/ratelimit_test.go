package httpx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestMemoryLimiterWindow(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(2, time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	d, _ := l.Take(ctx, "a")
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	d, _ = l.Take(ctx, "a")
	assert.True(t, d.Allowed)
	d, _ = l.Take(ctx, "a")
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.ResetIn)

	d, _ = l.Take(ctx, "b")
	assert.True(t, d.Allowed)

	now = now.Add(time.Minute)
	d, _ = l.Take(ctx, "a")
	assert.True(t, d.Allowed)
}

// scriptCounter stands in for Redis: it runs the fixed-window script's
// semantics against an in-memory map.
type scriptCounter struct {
	counts map[string]int64
	err    error
}

func (s *scriptCounter) run(keys []string) *redis.Cmd {
	if s.err != nil {
		return redis.NewCmdResult(nil, s.err)
	}
	s.counts[keys[0]]++
	return redis.NewCmdResult([]interface{}{s.counts[keys[0]], int64(42_000)}, nil)
}

func (s *scriptCounter) Eval(_ context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return s.run(keys)
}

func (s *scriptCounter) EvalSha(_ context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return s.run(keys)
}

func (s *scriptCounter) EvalRO(_ context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return s.run(keys)
}

func (s *scriptCounter) EvalShaRO(_ context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return s.run(keys)
}

func (s *scriptCounter) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (s *scriptCounter) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("sha", nil)
}

func TestRateLimitMiddlewareWithRedisLimiter(t *testing.T) {
	counter := &scriptCounter{counts: map[string]int64{}}
	limiter := NewRedisLimiter(counter, 1, time.Minute, "test:rl")
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), RateLimit(limiter, ClientKey, quiet, false))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots", nil)
	req.RemoteAddr = "198.51.100.7:4000"

	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	assert.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, "1", rw.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rw.Header().Get("X-RateLimit-Remaining"))

	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	assert.Equal(t, http.StatusTooManyRequests, rw.Code)
	assert.Equal(t, "42", rw.Header().Get("Retry-After"))
	assert.Contains(t, rw.Body.String(), `"code":"rate_limited"`)
	assert.Equal(t, int64(2), counter.counts["test:rl:198.51.100.7"])
}

func TestRateLimitFailOpen(t *testing.T) {
	counter := &scriptCounter{counts: map[string]int64{}, err: errors.New("connection refused")}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	limiter := NewRedisLimiter(counter, 1, time.Minute, "")

	rw := httptest.NewRecorder()
	RateLimit(limiter, nil, quiet, true)(ok).ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rw.Code)

	rw = httptest.NewRecorder()
	RateLimit(limiter, nil, quiet, false)(ok).ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusServiceUnavailable, rw.Code)
}

func TestClientKeyPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", ClientKey(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientKey(req))
}
