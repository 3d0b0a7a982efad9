package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testAuth(t *testing.T, key string) *Auth {
	a, err := New(Options{
		Logger:        zaptest.NewLogger(t),
		JWTSigningKey: key,
		Environment:   EnvDevelopment,
	})
	require.NoError(t, err)
	return a
}

func protectedHandler(a *Auth) http.Handler {
	return a.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := r.Context().Value(Context).(*Claims)
		if !ok || !claims.Admin {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestMiddlewareAcceptsMintedToken(t *testing.T) {
	a := testAuth(t, "test-signing-key")
	token, err := a.CreateToken("operator")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protectedHandler(a).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareRejectsMissingOrMalformedHeader(t *testing.T) {
	a := testAuth(t, "test-signing-key")

	for _, header := range []string{"", "Basic abc", "Bearer", "bearer token"} {
		req := httptest.NewRequest("GET", "/", nil)
		if len(header) > 0 {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		protectedHandler(a).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestMiddlewareRejectsForeignToken(t *testing.T) {
	a := testAuth(t, "test-signing-key")
	other := testAuth(t, "another-signing-key")

	token, err := other.CreateToken("operator")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protectedHandler(a).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareRejectsGarbageToken(t *testing.T) {
	a := testAuth(t, "test-signing-key")

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer not.a.jwt")
	rec := httptest.NewRecorder()
	protectedHandler(a).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
