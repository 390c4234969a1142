// Package rbac resolves the caller from the request context and enforces account-kind checks.
package rbac

import (
	"context"
	"errors"
	"net/http"

	"account-mirror/internal/account/domain"
	"account-mirror/internal/platform/httpx"
	"account-mirror/internal/server/middleware"
)

var (
	// ErrUnauthenticated means no account identity is present in the context.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrNotPrimary means the caller is not an active PRIMARY account.
	ErrNotPrimary = errors.New("primary account required")
)

// AccountGetter loads an account by id. Used by RequirePrimary to resolve the caller.
type AccountGetter interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
}

// Caller returns the authenticated account id set by the auth middleware.
func Caller(ctx context.Context) (string, error) {
	id, ok := middleware.GetAccountID(ctx)
	if !ok {
		return "", ErrUnauthenticated
	}
	return id, nil
}

// CheckPrimary ensures the caller is an active PRIMARY account and returns it.
// The token's kind claim is not trusted on its own; the account is re-read.
func CheckPrimary(ctx context.Context, getter AccountGetter) (*domain.Account, error) {
	id, err := Caller(ctx)
	if err != nil {
		return nil, err
	}
	acc, err := getter.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if acc == nil || acc.Kind != domain.KindPrimary || !acc.Active {
		return nil, ErrNotPrimary
	}
	return acc, nil
}

// RequirePrimary is middleware that answers 401 without an identity and 403 unless the caller
// is an active PRIMARY account.
func RequirePrimary(getter AccountGetter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, err := CheckPrimary(r.Context(), getter)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, ErrUnauthenticated):
				httpx.Error(w, http.StatusUnauthorized, err.Error())
			case errors.Is(err, ErrNotPrimary):
				httpx.Error(w, http.StatusForbidden, err.Error())
			default:
				httpx.Error(w, http.StatusInternalServerError, "failed to resolve account")
			}
		})
	}
}
