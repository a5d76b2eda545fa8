package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func traceThrough(t *testing.T, headers map[string]string) (string, string) {
	t.Helper()

	var fromCtx string
	h := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = TraceIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/statistics", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return fromCtx, rec.Header().Get("X-Request-ID")
}

func TestTracing(t *testing.T) {
	t.Run("generates an id when none supplied", func(t *testing.T) {
		fromCtx, echoed := traceThrough(t, nil)
		require.NotEmpty(t, fromCtx)
		assert.Equal(t, fromCtx, echoed)
		_, err := uuid.Parse(fromCtx)
		require.NoError(t, err)
	})

	t.Run("honors inbound request id", func(t *testing.T) {
		fromCtx, echoed := traceThrough(t, map[string]string{"X-Request-ID": "req-77"})
		assert.Equal(t, "req-77", fromCtx)
		assert.Equal(t, "req-77", echoed)
	})

	t.Run("falls back to provider correlation id", func(t *testing.T) {
		fromCtx, _ := traceThrough(t, map[string]string{"X-Correlation-ID": "wallet-cb-42"})
		assert.Equal(t, "wallet-cb-42", fromCtx)
	})

	t.Run("replaces oversized inbound id", func(t *testing.T) {
		fromCtx, _ := traceThrough(t, map[string]string{"X-Request-ID": strings.Repeat("a", 200)})
		_, err := uuid.Parse(fromCtx)
		require.NoError(t, err)
	})
}
