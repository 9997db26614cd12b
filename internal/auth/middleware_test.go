package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-pricing/internal/auth"
	"ms-pricing/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func localAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		Mode:        "local",
		LocalSecret: testSecret,
		AdminRole:   "pricing-admin",
	}
}

func signToken(t *testing.T, sub string, roles []string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
		"realm_access": map[string]interface{}{
			"roles": roles,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func protectedRouter(requireRole string) http.Handler {
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(auth.Subject(r.Context())))
	})
	if requireRole != "" {
		handler = auth.RequireRole(requireRole)(handler)
	}
	return auth.Middleware(localAuthConfig())(handler)
}

func TestMiddlewareRejectsMissingHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	protectedRouter("").ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareRejectsMalformedHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "NotBearer token")

	protectedRouter("").ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareRejectsBadSignature(t *testing.T) {
	claims := jwt.MapClaims{"sub": "user"}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)

	protectedRouter("").ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareExtractsSubject(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "user-42", nil))

	protectedRouter("").ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-42", rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	// Without the role: forbidden.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "user-42", []string{"viewer"}))

	protectedRouter("pricing-admin").ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// With the role: allowed.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "user-42", []string{"viewer", "pricing-admin"}))

	protectedRouter("pricing-admin").ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
