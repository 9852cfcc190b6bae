package middleware

import (
	"net/http"
	"strings"

	"github.com/kiranshivaraju/sentineleye/internal/api/response"
	"golang.org/x/crypto/bcrypt"
)

const keyPrefixLen = 8

// Auth checks API keys against a configured list of bcrypt hashes.
type Auth struct {
	hashes [][]byte
}

// NewAuth creates a new Auth middleware. With no hashes every request is let
// through unauthenticated.
func NewAuth(hashes []string) *Auth {
	a := &Auth{}
	for _, h := range hashes {
		if h = strings.TrimSpace(h); h != "" {
			a.hashes = append(a.hashes, []byte(h))
		}
	}
	return a
}

// Enabled reports whether any API key is configured.
func (a *Auth) Enabled() bool {
	return len(a.hashes) > 0
}

// Authenticate validates the Bearer token (or X-API-Key header) and records
// the key prefix in the request context for rate limiting.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		rawKey := extractKey(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		if len(rawKey) < keyPrefixLen {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key format", nil)
			return
		}

		for _, hash := range a.hashes {
			if bcrypt.CompareHashAndPassword(hash, []byte(rawKey)) == nil {
				ctx := setKeyPrefix(r.Context(), rawKey[:keyPrefixLen])
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		response.Error(w, http.StatusUnauthorized,
			"INVALID_TOKEN", "Invalid API key", nil)
	})
}

func extractKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
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
