package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCounter struct {
	counts map[string]int64
	ttls   map[string]time.Duration
	err    error
}

func newMemCounter() *memCounter {
	return &memCounter{counts: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (m *memCounter) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.counts[key]++
	m.ttls[key] = ttl
	return m.counts[key], nil
}

func cooldownCall(t *testing.T, mw echo.MiddlewareFunc, userID uint64) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	if userID != 0 {
		c.Set(ctxInvocation, Invocation{UserID: userID})
	}
	h := mw(func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	require.NoError(t, h(c))
	return rec
}

func TestCooldown(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 1, 0, time.UTC)
	counter := newMemCounter()
	mw := CooldownMiddleware(CooldownConfig{
		Counter: counter,
		Command: "reminder_add",
		Uses:    1,
		Window:  3 * time.Second,
		now:     func() time.Time { return now },
	})

	assert.Equal(t, http.StatusNoContent, cooldownCall(t, mw, 7).Code)

	rec := cooldownCall(t, mw, 7)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, cooldownCall(t, mw, 8).Code, "cooldowns are per user")

	now = now.Add(3 * time.Second)
	assert.Equal(t, http.StatusNoContent, cooldownCall(t, mw, 7).Code, "next window")

	for key, ttl := range counter.ttls {
		assert.Contains(t, key, "cd:reminder_add:")
		assert.Equal(t, 6*time.Second, ttl)
	}
}

func TestCooldown_FailsOpen(t *testing.T) {
	counter := newMemCounter()
	counter.err = errors.New("redis down")
	mw := CooldownMiddleware(CooldownConfig{Counter: counter, Command: "x", Uses: 1, Window: time.Second})

	assert.Equal(t, http.StatusNoContent, cooldownCall(t, mw, 7).Code)
	assert.Equal(t, http.StatusNoContent, cooldownCall(t, mw, 7).Code)
}

func TestCooldown_Unconfigured(t *testing.T) {
	mw := CooldownMiddleware(CooldownConfig{Command: "x", Uses: 1})
	assert.Equal(t, http.StatusNoContent, cooldownCall(t, mw, 7).Code)
	assert.Equal(t, http.StatusNoContent, cooldownCall(t, mw, 7).Code)
	assert.Equal(t, http.StatusNoContent, cooldownCall(t, mw, 0).Code)
}
