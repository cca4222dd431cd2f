package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/muse-store/miniapp/internal/platform/requestctx"
)

// TokenParser verifies session tokens.
type TokenParser interface {
	Parse(token string) (*Identity, error)
}

// RequireSession verifies the bearer session token and stores the identity on the request context.
// Websocket upgrades cannot set headers from browsers, so a token query parameter is accepted too.
func RequireSession(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokens == nil {
				respondAuthError(w, http.StatusServiceUnavailable, "unauthenticated", "session verification unavailable")
				return
			}
			raw, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				raw = strings.TrimSpace(r.URL.Query().Get("token"))
			}
			if raw == "" {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			identity, err := tokens.Parse(raw)
			switch {
			case errors.Is(err, ErrSessionTokenExpired):
				respondAuthError(w, http.StatusUnauthorized, "token_expired", "session token expired")
				return
			case err != nil:
				respondAuthError(w, http.StatusUnauthorized, "invalid_token", "session token invalid")
				return
			}
			ctx := requestctx.WithSession(WithIdentity(r.Context(), identity), identity.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   code,
		"message": message,
		"status":  status,
	})
}
