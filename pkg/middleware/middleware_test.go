package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/legacy-migrator/pkg/composables"
)

func TestProvideIdentity(t *testing.T) {
	userID := uuid.New()
	var seen bool
	handler := ProvideIdentity()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := composables.UseIdentity(r.Context())
		require.NoError(t, err)
		require.Equal(t, userID, identity.UserID)
		require.Equal(t, []string{"core.superadmin", "ops"}, identity.Roles)
		seen = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", userID.String())
	req.Header.Set("X-User-Roles", "core.superadmin, ops,")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.True(t, seen)
}

func TestProvideIdentity_Anonymous(t *testing.T) {
	handler := ProvideIdentity()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := composables.UseIdentity(r.Context())
		require.ErrorIs(t, err, composables.ErrNoIdentity)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "not-a-uuid")
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

func TestWithLogger_RecoversPanics(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)

	handler := WithLogger(logger, DefaultLoggerOptions())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/migrations/api/sessions", nil)
	req.Header.Set("X-Request-ID", "req-1")
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "req-1", rec.Header().Get("X-Request-Id"))
	require.Contains(t, rec.Body.String(), "INTERNAL_SERVER_ERROR")
	require.Contains(t, buf.String(), "panic recovered")
}

func TestWithLogger_ProvidesRequestLogger(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	handler := WithLogger(logger, DefaultLoggerOptions())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entry := composables.UseLogger(r.Context())
		require.Equal(t, "req-2", entry.Data["request-id"])
		params, ok := composables.UseParams(r.Context())
		require.True(t, ok)
		require.Equal(t, "req-2", params.RequestID)
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-2")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRateLimit(t *testing.T) {
	handler := RateLimit(RateLimitConfig{RequestsPerPeriod: 1, Period: time.Minute})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
	)

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, first.Code)
	require.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	require.Contains(t, second.Body.String(), "RATE_LIMITED")

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "198.51.100.7:4000"
	third := httptest.NewRecorder()
	handler.ServeHTTP(third, other)
	require.Equal(t, http.StatusNoContent, third.Code)
}
