package middleware

import (
	"net/http"
	"strings"

	"github.com/kiranshivaraju/attrition/internal/api/response"
	"github.com/kiranshivaraju/attrition/internal/cache"
	"golang.org/x/crypto/bcrypt"
)

const keyPrefixLen = 8

// Auth checks the caller's API key against a single bcrypt hash.
type Auth struct {
	hash []byte
}

// NewAuth creates a new Auth middleware. An empty hash disables the check.
func NewAuth(hash string) *Auth {
	return &Auth{hash: []byte(hash)}
}

func (a *Auth) Enabled() bool { return len(a.hash) > 0 }

// Authenticate validates the Bearer token (or X-API-Key header) and records a
// short key fingerprint in the request context for rate limiting.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		rawKey := extractBearerToken(r)
		if rawKey == "" {
			rawKey = strings.TrimSpace(r.Header.Get("X-API-Key"))
		}
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		if bcrypt.CompareHashAndPassword(a.hash, []byte(rawKey)) != nil {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key", nil)
			return
		}

		prefix := cache.Fingerprint([]byte(rawKey))[:keyPrefixLen]
		next.ServeHTTP(w, r.WithContext(setSubject(r.Context(), "key:"+prefix)))
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
