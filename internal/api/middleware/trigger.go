package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/traindeck/traindeck-api/internal/api/shared"
)

// TriggerAuth guards the internal processing endpoints with a shared
// secret. The comparison is constant-time; a failed check produces a 401
// and nothing else runs.
type TriggerAuth struct {
	secret []byte
}

// NewTriggerAuth creates a TriggerAuth for the given shared secret.
func NewTriggerAuth(secret string) *TriggerAuth {
	return &TriggerAuth{secret: []byte(secret)}
}

// Authenticate verifies the Authorization bearer secret.
func (t *TriggerAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok || subtle.ConstantTimeCompare([]byte(token), t.secret) != 1 {
			slog.WarnContext(r.Context(), "trigger auth rejected",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr)
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
