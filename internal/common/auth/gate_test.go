// internal/common/auth/gate_test.go
package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgdiag-pipeline/internal/common/logger"
)

func newTestGate() *Gate {
	return NewGate("admin-secret", logger.NewNoOpLogger())
}

func protectedHandler(t *testing.T, gate *Gate) http.Handler {
	t.Helper()
	return gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
}

func TestMiddlewareAllowsValidToken(t *testing.T) {
	gate := newTestGate()
	handler := protectedHandler(t, gate)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	req.Header.Set("Authorization", "Bearer admin-secret")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMiddlewareRejectsMissingHeader(t *testing.T) {
	gate := newTestGate()
	handler := protectedHandler(t, gate)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "administrator credential required")
}

func TestMiddlewareRejectsWrongToken(t *testing.T) {
	gate := newTestGate()
	handler := protectedHandler(t, gate)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareRejectsNonBearerScheme(t *testing.T) {
	gate := newTestGate()
	handler := protectedHandler(t, gate)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	req.Header.Set("Authorization", "Basic YWRtaW46YWRtaW4=")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthorizeCaseInsensitiveScheme(t *testing.T) {
	gate := newTestGate()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer admin-secret")

	require.True(t, gate.Authorize(req))
}

func TestExtractBearer(t *testing.T) {
	assert.Equal(t, "tok", extractBearer("Bearer tok"))
	assert.Equal(t, "tok", extractBearer("bearer tok"))
	assert.Equal(t, "", extractBearer(""))
	assert.Equal(t, "", extractBearer("Bearer"))
	assert.Equal(t, "", extractBearer("Token tok"))
}
