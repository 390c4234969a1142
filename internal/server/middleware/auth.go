package middleware

import (
	"context"
	"net/http"
	"strings"

	"account-mirror/internal/platform/httpx"
	"account-mirror/internal/security"
)

const bearerPrefix = "bearer "

// AccessValidator checks an access token and that its session is still live.
// The identity service's VerifyAccess implements it.
type AccessValidator interface {
	VerifyAccess(ctx context.Context, token string) (*security.AccessIdentity, error)
}

// Authenticate parses an optional Bearer access token and, when valid, stores the identity in
// the request context. Invalid, revoked or missing tokens pass through unauthenticated; use
// RequireAuth on protected routes.
func Authenticate(tokens AccessValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractBearer(r)
			if token == "" || tokens == nil {
				next.ServeHTTP(w, r)
				return
			}
			id, err := tokens.VerifyAccess(r.Context(), token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := WithIdentity(r.Context(), id.AccountID, id.Kind, id.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests without an authenticated identity with 401.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetAccountID(r.Context()); !ok {
			httpx.Error(w, http.StatusUnauthorized, "missing or invalid authorization")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ExtractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func ExtractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
