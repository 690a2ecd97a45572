package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDashboardCORSPreflight(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), WithCORS(DashboardCORSPolicy([]string{"https://app.groombook.test"})))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/appointments", nil)
	req.Header.Set("Origin", "https://app.groombook.test")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)

	assert.Equal(t, http.StatusNoContent, rw.Code)
	assert.Equal(t, "https://app.groombook.test", rw.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rw.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rw.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	other := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	other.Header.Set("Origin", "https://evil.test")
	rwOther := httptest.NewRecorder()
	h.ServeHTTP(rwOther, other)
	assert.Equal(t, http.StatusOK, rwOther.Code)
	assert.Empty(t, rwOther.Header().Get("Access-Control-Allow-Origin"))
}

func TestOriginMatcher(t *testing.T) {
	m := NewOriginMatcher([]string{"https://app.groombook.test/", "https://*.salons.groombook.test", " "})
	assert.False(t, m.Empty())
	assert.True(t, m.Allows("https://app.groombook.test"))
	assert.True(t, m.Allows("https://Paws.salons.groombook.test"))
	assert.False(t, m.Allows("http://paws.salons.groombook.test"))
	assert.False(t, m.Allows("https://.salons.groombook.test"))
	assert.False(t, m.Allows("https://evilsalons.groombook.test"))

	assert.True(t, NewOriginMatcher([]string{"*"}).Allows("https://anything.test"))
	assert.True(t, NewOriginMatcher(nil).Empty())
}
