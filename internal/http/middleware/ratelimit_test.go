package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kompressai/portal/pkg/logging"
)

func TestRateLimiterBurstThenRefill(t *testing.T) {
	rl := NewRateLimiter(2, 3)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := range 3 {
		ok, _ := rl.Allow("1.2.3.4")
		require.True(t, ok, "request %d within burst", i)
	}
	ok, wait := rl.Allow("1.2.3.4")
	assert.False(t, ok)
	assert.InDelta(t, 500*time.Millisecond, wait, float64(10*time.Millisecond))

	other, _ := rl.Allow("5.6.7.8")
	assert.True(t, other, "buckets are per key")

	now = now.Add(500 * time.Millisecond)
	ok, _ = rl.Allow("1.2.3.4")
	assert.True(t, ok, "one token refilled")
}

func TestRateLimiterEvict(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	now = now.Add(time.Minute)
	rl.Allow("b")

	assert.Equal(t, 1, rl.Evict(30*time.Second))
	assert.Equal(t, 0, rl.Evict(-time.Second))
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := NewRateLimiter(0.001, 1).Middleware(okHandler(nil))

	req := httptest.NewRequest(http.MethodPost, "/chat/sessions/x/messages", nil)
	req.Header.Set("X-Real-Ip", "9.9.9.9")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", ClientIP(req))

	req.Header.Set("X-Real-Ip", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", ClientIP(req))
}

func TestRequestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := &logging.Logger{Logger: slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}

	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	rec := httptest.NewRecorder()
	RequestLogger(logger)(failing).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/projects", nil))

	out := buf.String()
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, `"status":502`)
	assert.Contains(t, out, `"component":"http"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	buf.Reset()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "req-123")
	RequestLogger(logger)(okHandler(nil)).ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, strings.Contains(buf.String(), `"request_id":"req-123"`))
	assert.Contains(t, buf.String(), `"level":"INFO"`)
}
