package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func reject(w http.ResponseWriter, _ *http.Request, _ time.Duration) {
	w.WriteHeader(http.StatusTooManyRequests)
}

func TestMemoryCounterWindow(t *testing.T) {
	c := NewMemoryCounter()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	n, reset, err := c.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, time.Minute, reset)

	now = now.Add(30 * time.Second)
	n, reset, _ = c.Incr(ctx, "k", time.Minute)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 30*time.Second, reset)

	now = now.Add(30 * time.Second)
	n, _, _ = c.Incr(ctx, "k", time.Minute)
	assert.Equal(t, int64(1), n, "window resets")

	n, _, _ = c.Incr(ctx, "other", time.Minute)
	assert.Equal(t, int64(1), n)
}

func TestMiddlewareLimitsPerIP(t *testing.T) {
	l := New(NewMemoryCounter(), false, reject, testLogger())
	h := l.Middleware(Rule{Name: "auth", Limit: 2, Window: time.Minute})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:1111").Code)
	second := call("10.0.0.1:2222")
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "0", second.Header().Get("RateLimit-Remaining"))

	third := call("10.0.0.1:3333")
	assert.Equal(t, http.StatusTooManyRequests, third.Code)
	assert.Equal(t, "60", third.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, call("10.0.0.2:1111").Code, "other clients are unaffected")
}

func TestClientIPBehindProxy(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "172.16.0.1:5000"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 172.16.0.1")

	assert.Equal(t, "203.0.113.7", New(nil, true, reject, testLogger()).clientIP(req))
	assert.Equal(t, "172.16.0.1", New(nil, false, reject, testLogger()).clientIP(req))
}

type brokenCounter struct{}

func (brokenCounter) Incr(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("redis down")
}

func TestCounterErrorFailsOpen(t *testing.T) {
	l := New(brokenCounter{}, false, reject, testLogger())
	h := l.Middleware(Rule{Name: "general", Limit: 1, Window: time.Minute})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
