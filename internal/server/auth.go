package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/courseai/lectio-go/internal/logging"
)

// IdentityLookup resolves whether an authenticated principal is allowed to
// use the assistant. The server consumes but never implements it — deployers
// plug in whatever directory backs their course roster. The principal passed
// in is the presented API key.
// Implementations must be safe to call from multiple goroutines.
type IdentityLookup interface {
	// Active reports whether the principal may use the service. A false
	// return with a nil error means the principal exists but is disabled.
	Active(ctx context.Context, principal string) (bool, error)
}

// authMiddleware returns an HTTP middleware that enforces Bearer token
// authentication. If apiKey is empty the middleware is a no-op — auth is
// disabled and a warning is logged at server startup (not per-request).
//
// Protected routes must supply:
//
//	Authorization: Bearer <apiKey>
//
// Requests missing or presenting an incorrect token receive 401 Unauthorized
// with a WWW-Authenticate: Bearer challenge. When an IdentityLookup is
// configured, principals it reports inactive receive 403 Forbidden even with
// a valid token. The token value is never logged — only its presence/absence
// is recorded.
func authMiddleware(apiKey string, identities IdentityLookup, next http.Handler) http.Handler {
	if apiKey == "" {
		// Auth disabled — pass all requests through unchanged.
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context())

		token := bearerToken(r)
		if token == "" {
			log.Warn("auth: missing Authorization header",
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="lectio"`)
			http.Error(w, "authorization required", http.StatusUnauthorized)
			return
		}

		if token != apiKey {
			log.Warn("auth: invalid token",
				slog.String("path", r.URL.Path),
				slog.Bool("token_present", true),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="lectio" error="invalid_token"`)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		if identities != nil {
			active, err := identities.Active(r.Context(), token)
			if err != nil {
				log.Error("auth: identity lookup failed", slog.Any("error", err))
				http.Error(w, "identity lookup unavailable", http.StatusServiceUnavailable)
				return
			}
			if !active {
				log.Warn("auth: inactive principal rejected",
					slog.String("path", r.URL.Path),
				)
				http.Error(w, "account inactive", http.StatusForbidden)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Returns an empty string if the header is absent or malformed.
func bearerToken(r *http.Request) string {
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return ""
	}
	parts := strings.SplitN(hdr, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
