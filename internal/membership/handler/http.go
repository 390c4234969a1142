// Package handler serves member approval and invitation endpoints.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	accountdomain "account-mirror/internal/account/domain"
	accounthandler "account-mirror/internal/account/handler"
	invitationdomain "account-mirror/internal/invitation/domain"
	"account-mirror/internal/membership/service"
	"account-mirror/internal/platform/httpx"
	"account-mirror/internal/platform/rbac"
)

// Membership is implemented by *service.Service.
type Membership interface {
	Approve(ctx context.Context, actorID, accountID string) (*accountdomain.Account, error)
	ListPending(ctx context.Context, actorID string) ([]*accountdomain.Account, error)
	SendInvitation(ctx context.Context, issuerID, email string) (*invitationdomain.Invitation, error)
}

// Handler serves the membership routes. All of them require an authenticated caller.
type Handler struct {
	svc Membership
	log *zap.Logger
}

// New returns a membership handler.
func New(svc Membership, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

type invitationView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SendInvitation handles POST /api/auth/send-invitation.
func (h *Handler) SendInvitation(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	inv, err := h.svc.SendInvitation(r.Context(), caller, req.Email)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invitationView{ID: inv.ID, Email: inv.Email, ExpiresAt: inv.ExpiresAt})
}

// ListPending handles GET /api/accounts/pending.
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	pending, err := h.svc.ListPending(r.Context(), caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounthandler.NewViews(pending))
}

// Approve handles POST /api/accounts/{id}/approve.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	acc, err := h.svc.Approve(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounthandler.NewView(acc))
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.svc == nil {
		httpx.Error(w, http.StatusServiceUnavailable, "membership not configured")
		return "", false
	}
	id, err := rbac.Caller(r.Context())
	if err != nil {
		httpx.Error(w, http.StatusUnauthorized, err.Error())
		return "", false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if httpx.Invalid(w, err) {
		return
	}
	switch {
	case errors.Is(err, service.ErrApprovalForbidden), errors.Is(err, service.ErrNotPrimary):
		httpx.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrAlreadyApproved), errors.Is(err, service.ErrEmailTaken):
		httpx.Error(w, http.StatusConflict, err.Error())
	default:
		h.log.Error("membership: request failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "internal error")
	}
}

var _ Membership = (*service.Service)(nil)
