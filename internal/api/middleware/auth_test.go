package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traindeck/traindeck-api/internal/api/shared"
)

const testJWTSecret = "test-jwt-secret-at-least-32-chars-long"

func mintToken(t *testing.T, secret string, userID, orgID uuid.UUID, expiresIn time.Duration) string {
	t.Helper()

	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"org_id":  orgID.String(),
		"exp":     time.Now().Add(expiresIn).Unix(),
		"iat":     time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

// identityProbe records the identity the middleware attached.
func identityProbe(gotUser, gotOrg *uuid.UUID, called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		if id, ok := shared.GetUserID(r.Context()); ok {
			*gotUser = id
		}
		if id, ok := shared.GetOrgID(r.Context()); ok {
			*gotOrg = id
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	t.Run("valid_token_attaches_identity", func(t *testing.T) {
		t.Parallel()

		userID, orgID := uuid.New(), uuid.New()
		var gotUser, gotOrg uuid.UUID
		var called bool

		m := NewAuthMiddleware(testJWTSecret)
		handler := m.Authenticate(identityProbe(&gotUser, &gotOrg, &called))

		req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
		req.Header.Set("Authorization", "Bearer "+mintToken(t, testJWTSecret, userID, orgID, time.Hour))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, called)
		assert.Equal(t, userID, gotUser)
		assert.Equal(t, orgID, gotOrg)
	})

	t.Run("missing_header_rejected", func(t *testing.T) {
		t.Parallel()

		var called bool
		m := NewAuthMiddleware(testJWTSecret)
		handler := m.Authenticate(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			called = true
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, called)
	})

	t.Run("expired_token_rejected", func(t *testing.T) {
		t.Parallel()

		m := NewAuthMiddleware(testJWTSecret)
		handler := m.Authenticate(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("handler must not run")
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
		req.Header.Set("Authorization",
			"Bearer "+mintToken(t, testJWTSecret, uuid.New(), uuid.New(), -time.Hour))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Token expired")
	})

	t.Run("wrong_secret_rejected", func(t *testing.T) {
		t.Parallel()

		m := NewAuthMiddleware(testJWTSecret)
		handler := m.Authenticate(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("handler must not run")
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
		req.Header.Set("Authorization",
			"Bearer "+mintToken(t, "another-secret-that-is-32-chars-xx", uuid.New(), uuid.New(), time.Hour))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed_bearer_rejected", func(t *testing.T) {
		t.Parallel()

		m := NewAuthMiddleware(testJWTSecret)
		handler := m.Authenticate(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("handler must not run")
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
		req.Header.Set("Authorization", "Token abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing_identity_claims_rejected", func(t *testing.T) {
		t.Parallel()

		claims := jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
			SignedString([]byte(testJWTSecret))
		require.NoError(t, err)

		m := NewAuthMiddleware(testJWTSecret)
		handler := m.Authenticate(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("handler must not run")
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestTriggerAuth(t *testing.T) {
	t.Parallel()

	const secret = "trigger-secret-that-is-32-chars-xx"

	t.Run("correct_secret_passes", func(t *testing.T) {
		t.Parallel()

		var called bool
		auth := NewTriggerAuth(secret)
		handler := auth.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodPost, "/internal/jobs/process", nil)
		req.Header.Set("Authorization", "Bearer "+secret)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, called)
	})

	t.Run("wrong_secret_gets_401_and_no_processing", func(t *testing.T) {
		t.Parallel()

		var called bool
		auth := NewTriggerAuth(secret)
		handler := auth.Authenticate(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			called = true
		}))

		req := httptest.NewRequest(http.MethodPost, "/internal/jobs/process", nil)
		req.Header.Set("Authorization", "Bearer not-the-secret")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, called)
	})

	t.Run("missing_header_gets_401", func(t *testing.T) {
		t.Parallel()

		auth := NewTriggerAuth(secret)
		handler := auth.Authenticate(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("handler must not run")
		}))

		req := httptest.NewRequest(http.MethodPost, "/internal/jobs/process", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
