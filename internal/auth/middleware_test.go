package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/marsukat/marsukat-dashboard/internal/auth"
)

func newService(t *testing.T, keys ...string) *auth.Service {
	t.Helper()
	hashes := make([]string, 0, len(keys))
	for _, k := range keys {
		hash, err := bcrypt.GenerateFromPassword([]byte(k), bcrypt.MinCost)
		require.NoError(t, err)
		hashes = append(hashes, string(hash))
	}
	return auth.NewService(hashes)
}

func protected(svc *auth.Service) http.Handler {
	return auth.Middleware(svc, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_, _ = w.Write([]byte(p.KeyID))
	}))
}

func TestMiddlewareAcceptsBearerKey(t *testing.T) {
	h := protected(newService(t, "alpha", "beta"))

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/statuses", nil)
	req.Header.Set("Authorization", "Bearer beta")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "key-2", rr.Body.String())
}

func TestMiddlewareAcceptsAPIKeyHeader(t *testing.T) {
	h := protected(newService(t, "alpha"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "alpha")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMiddlewareRejectsUnknownKey(t *testing.T) {
	h := protected(newService(t, "alpha"))

	for _, header := range []string{"", "Bearer wrong", "Basic alpha"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, header)
		assert.NotEmpty(t, rr.Header().Get("WWW-Authenticate"))
	}
}

func TestMiddlewareDisabledWithoutKeys(t *testing.T) {
	h := protected(auth.NewService(nil))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
}

func TestAuthenticateRemembersVerifiedKey(t *testing.T) {
	svc := newService(t, "alpha")
	first, err := svc.Authenticate("alpha")
	require.NoError(t, err)
	second, err := svc.Authenticate("alpha")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = svc.Authenticate("")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestHashKeyRoundTrip(t *testing.T) {
	hash, err := auth.HashKey("gamma")
	require.NoError(t, err)
	_, err = auth.NewService([]string{hash}).Authenticate("gamma")
	assert.NoError(t, err)
}
