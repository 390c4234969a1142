package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accountdomain "account-mirror/internal/account/domain"
	accountrepo "account-mirror/internal/account/repository"
	invitationrepo "account-mirror/internal/invitation/repository"
	"account-mirror/internal/membership/service"
	"account-mirror/internal/platform/httpx"
	"account-mirror/internal/server/middleware"
)

func newRouter(t *testing.T) (http.Handler, *accountrepo.MemoryRepository) {
	t.Helper()
	accounts := accountrepo.NewMemoryRepository()
	now := time.Now().UTC()
	accounts.Put(&accountdomain.Account{ID: "p1", Email: "owner@example.com", Phone: "+15550000001", Kind: accountdomain.KindPrimary, Active: true, EmailVerified: true, Approved: true, CreatedAt: now})
	accounts.Put(&accountdomain.Account{ID: "m1", Email: "member@example.com", Phone: "+15550000003", Kind: accountdomain.KindMember, ParentID: "p1", Active: true, EmailVerified: true, CreatedAt: now})
	h := New(service.NewService(accounts, invitationrepo.NewMemoryRepository(), nil, nil, nil), nil)

	r := chi.NewRouter()
	r.Post("/api/auth/send-invitation", h.SendInvitation)
	r.Get("/api/accounts/pending", h.ListPending)
	r.Post("/api/accounts/{id}/approve", h.Approve)
	return r, accounts
}

func as(req *http.Request, accountID, kind string) *http.Request {
	return req.WithContext(middleware.WithIdentity(req.Context(), accountID, kind, "s-"+accountID))
}

func TestApprove_Flow(t *testing.T) {
	r, accounts := newRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/accounts/m1/approve", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, as(httptest.NewRequest(http.MethodPost, "/api/accounts/m1/approve", nil), "m1", "MEMBER"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	stored, _ := accounts.GetByID(context.Background(), "m1")
	assert.False(t, stored.Approved)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, as(httptest.NewRequest(http.MethodPost, "/api/accounts/m1/approve", nil), "p1", "PRIMARY"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, as(httptest.NewRequest(http.MethodPost, "/api/accounts/m1/approve", nil), "p1", "PRIMARY"))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListPending(t *testing.T) {
	r, _ := newRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, as(httptest.NewRequest(http.MethodGet, "/api/accounts/pending", nil), "p1", "PRIMARY"))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "m1", body.Data[0]["id"])
}

func TestSendInvitation(t *testing.T) {
	r, _ := newRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, as(httptest.NewRequest(http.MethodPost, "/api/auth/send-invitation", strings.NewReader(`{"email":"new@example.com"}`)), "p1", "PRIMARY"))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "token")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, as(httptest.NewRequest(http.MethodPost, "/api/auth/send-invitation", strings.NewReader(`{"email":"member@example.com"}`)), "p1", "PRIMARY"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, as(httptest.NewRequest(http.MethodPost, "/api/auth/send-invitation", strings.NewReader(`{"email":"x@example.com"}`)), "m1", "MEMBER"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, as(httptest.NewRequest(http.MethodPost, "/api/auth/send-invitation", strings.NewReader(`{"email":"bad"}`)), "p1", "PRIMARY"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var got httpx.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.NotEmpty(t, got.Fields["email"])
}

func TestNilService(t *testing.T) {
	rec := httptest.NewRecorder()
	New(nil, nil).ListPending(rec, httptest.NewRequest(http.MethodGet, "/api/accounts/pending", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
