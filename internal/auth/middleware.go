package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// CookieName is the cookie the storefront stores its session token in.
const CookieName = "auth-token"

// Middleware attaches the caller's identity to the request context when a
// valid token is presented. Requests without one pass through anonymously;
// handlers decide whether an identity is required.
func Middleware(tokens *Tokens, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := tokenFromRequest(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := tokens.Verify(raw)
			if err != nil {
				logger.DebugContext(r.Context(), "ignoring invalid session token", slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}
