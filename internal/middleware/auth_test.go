package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret-0123456789"

func protected(t *testing.T, header string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var subject string
	h := Auth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = Subject(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/queue/flush", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, subject
}

func TestValidTokenPasses(t *testing.T) {
	token, err := NewToken(secret, "ops", time.Hour)
	require.NoError(t, err)

	rec, subject := protected(t, "Bearer "+token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "ops", subject)
}

func TestRejectedTokens(t *testing.T) {
	expired, err := NewToken(secret, "ops", -time.Minute)
	require.NoError(t, err)
	foreign, err := NewToken("another-secret-98765", "ops", time.Hour)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "ops"}).SignedString([]byte(secret))
	require.NoError(t, err)

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic " + expired,
		"expired":        "Bearer " + expired,
		"wrong secret":   "Bearer " + foreign,
		"no expiry":      "Bearer " + noExpiry,
		"garbage":        "Bearer abc.def.ghi",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			rec, subject := protected(t, header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Empty(t, subject)
		})
	}
}
