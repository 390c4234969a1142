// Package handler serves the registration endpoints under /api/auth.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	accountdomain "account-mirror/internal/account/domain"
	accounthandler "account-mirror/internal/account/handler"
	"account-mirror/internal/platform/httpx"
	"account-mirror/internal/registration/service"
)

// Registration is the workflow the handler drives; *service.Service implements it.
type Registration interface {
	Init(ctx context.Context, email, phone string) error
	VerifyOTP(ctx context.Context, identifier, code string) error
	Complete(ctx context.Context, req service.CompleteRequest) (*accountdomain.Account, error)
	VerifyEmail(ctx context.Context, token string) (*accountdomain.Account, error)
}

// Handler serves the registration routes.
type Handler struct {
	svc Registration
	log *zap.Logger
}

// New returns a registration handler. A nil svc answers 503 on every route.
func New(svc Registration, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

type initRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type verifyOTPRequest struct {
	Identifier string `json:"identifier"`
	OTP        string `json:"otp"`
}

type completeRequest struct {
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Kind            string `json:"kind"`
	InvitationToken string `json:"invitation_token"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Birthday        string `json:"birthday"`
	Gender          string `json:"gender"`
}

// Init handles POST /api/auth/register/init.
func (h *Handler) Init(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		httpx.Error(w, http.StatusServiceUnavailable, "registration not configured")
		return
	}
	var req initRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.Init(r.Context(), req.Email, req.Phone); err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "verification code sent"})
}

// VerifyOTP handles POST /api/auth/register/verify-otp.
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		httpx.Error(w, http.StatusServiceUnavailable, "registration not configured")
		return
	}
	var req verifyOTPRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.VerifyOTP(r.Context(), req.Identifier, req.OTP); err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"verified": true})
}

// Complete handles POST /api/auth/register/complete.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		httpx.Error(w, http.StatusServiceUnavailable, "registration not configured")
		return
	}
	var req completeRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	birthday, err := accounthandler.ParseBirthday(strings.TrimSpace(req.Birthday))
	if err != nil {
		httpx.FieldErrors(w, "validation failed", map[string]string{"birthday": "birthday must be YYYY-MM-DD"})
		return
	}
	kind := accountdomain.Kind(strings.ToUpper(strings.TrimSpace(req.Kind)))
	if kind == "" {
		kind = accountdomain.KindPrimary
	}
	acc, err := h.svc.Complete(r.Context(), service.CompleteRequest{
		Email:           req.Email,
		Phone:           req.Phone,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Kind:            kind,
		InvitationToken: req.InvitationToken,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Birthday:        birthday,
		Gender:          accountdomain.Gender(strings.TrimSpace(req.Gender)),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, accounthandler.NewView(acc))
}

// VerifyEmail handles GET /api/auth/verify-email?token=.
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		httpx.Error(w, http.StatusServiceUnavailable, "registration not configured")
		return
	}
	acc, err := h.svc.VerifyEmail(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"message": "email verified",
		"account": accounthandler.NewView(acc),
	})
}

// writeError maps registration errors to the response envelope.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if httpx.Invalid(w, err) {
		return
	}
	var conflict *service.ConflictError
	switch {
	case errors.As(err, &conflict):
		writeConflict(w, conflict)
	case errors.Is(err, service.ErrInvitationInvalid):
		httpx.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrOTPInvalid),
		errors.Is(err, service.ErrOTPNotVerified),
		errors.Is(err, service.ErrVerificationLinkInvalid):
		httpx.Error(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("registration: request failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "internal error")
	}
}

func writeConflict(w http.ResponseWriter, c *service.ConflictError) {
	httpx.Write(w, http.StatusConflict, httpx.APIResponse{Status: "error", Message: c.Error(), Fields: c.Fields})
}

var _ Registration = (*service.Service)(nil)
