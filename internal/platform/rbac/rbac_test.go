package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"account-mirror/internal/account/domain"
	"account-mirror/internal/server/middleware"
)

// mockAccountGetter implements AccountGetter for tests.
type mockAccountGetter struct {
	accounts map[string]*domain.Account
	err      error
}

func (m *mockAccountGetter) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.accounts[id], nil
}

func newGetter() *mockAccountGetter {
	return &mockAccountGetter{accounts: map[string]*domain.Account{
		"p1": {ID: "p1", Kind: domain.KindPrimary, Active: true},
		"p2": {ID: "p2", Kind: domain.KindPrimary},
		"m1": {ID: "m1", Kind: domain.KindMember, ParentID: "p1", Active: true},
	}}
}

func TestCaller(t *testing.T) {
	if _, err := Caller(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("err = %v, want ErrUnauthenticated", err)
	}
	ctx := middleware.WithIdentity(context.Background(), "p1", "PRIMARY", "s1")
	id, err := Caller(ctx)
	if err != nil || id != "p1" {
		t.Errorf("Caller = %q, %v", id, err)
	}
}

func TestCheckPrimary(t *testing.T) {
	getter := newGetter()
	tests := []struct {
		name    string
		account string
		want    error
	}{
		{"active primary", "p1", nil},
		{"inactive primary", "p2", ErrNotPrimary},
		{"member", "m1", ErrNotPrimary},
		{"unknown", "x", ErrNotPrimary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := middleware.WithIdentity(context.Background(), tt.account, "PRIMARY", "s1")
			_, err := CheckPrimary(ctx, getter)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRequirePrimary(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	tests := []struct {
		name   string
		getter *mockAccountGetter
		ctx    context.Context
		status int
	}{
		{"anonymous", newGetter(), context.Background(), http.StatusUnauthorized},
		{"member", newGetter(), middleware.WithIdentity(context.Background(), "m1", "MEMBER", "s1"), http.StatusForbidden},
		{"primary", newGetter(), middleware.WithIdentity(context.Background(), "p1", "PRIMARY", "s1"), http.StatusNoContent},
		{"store error", &mockAccountGetter{err: errors.New("db down")}, middleware.WithIdentity(context.Background(), "p1", "PRIMARY", "s1"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/auth/send-invitation", nil).WithContext(tt.ctx)
			RequirePrimary(tt.getter)(ok).ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}
