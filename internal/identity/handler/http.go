// Package handler serves login, token, logout, password reset and profile endpoints under /api/auth.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	accountdomain "account-mirror/internal/account/domain"
	accounthandler "account-mirror/internal/account/handler"
	"account-mirror/internal/identity/service"
	"account-mirror/internal/platform/httpx"
	"account-mirror/internal/platform/rbac"
	"account-mirror/internal/security"
)

// Auth is implemented by *service.AuthService.
type Auth interface {
	Login(ctx context.Context, email, password string) (*service.AuthResult, error)
	RequestLoginOTP(ctx context.Context, phone string) error
	LoginWithOTP(ctx context.Context, phone, code string) (*service.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*service.AuthResult, error)
	Logout(ctx context.Context, refreshToken string) error
	VerifyAccess(ctx context.Context, accessToken string) (*security.AccessIdentity, error)
	RequestPasswordReset(ctx context.Context, identifier string) error
	ResetPassword(ctx context.Context, identifier, code, password, confirmPassword string) error
	Profile(ctx context.Context, accountID string) (*accountdomain.Account, error)
	UpdateProfile(ctx context.Context, accountID string, p accountdomain.Profile) (*accountdomain.Account, error)
}

// Handler serves the auth routes.
type Handler struct {
	svc Auth
	log *zap.Logger
}

// New returns an auth handler. A nil svc answers 503 on every route.
func New(svc Auth, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	AccountID    string    `json:"account_id"`
	Kind         string    `json:"kind"`
}

func newTokenResponse(r *service.AuthResult) tokenResponse {
	return tokenResponse{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    r.ExpiresAt,
		AccountID:    r.AccountID,
		Kind:         string(r.Kind),
	}
}

type profileRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Birthday  string `json:"birthday"`
	Gender    string `json:"gender"`
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newTokenResponse(res))
}

// RequestLoginOTP handles POST /api/auth/login/otp/request.
func (h *Handler) RequestLoginOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.RequestLoginOTP(r.Context(), req.Phone); err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "if the number is registered, a code has been sent"})
}

// LoginWithOTP handles POST /api/auth/login/otp/verify.
func (h *Handler) LoginWithOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
		OTP   string `json:"otp"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.LoginWithOTP(r.Context(), req.Phone, req.OTP)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newTokenResponse(res))
}

// Refresh handles POST /api/auth/token/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newTokenResponse(res))
}

// VerifyToken handles POST /api/auth/token/verify. The token comes from the body or the bearer header.
func (h *Handler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		httpx.Error(w, http.StatusServiceUnavailable, "auth not configured")
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	_ = httpx.Decode(r, &req)
	token := strings.TrimSpace(req.Token)
	if token == "" {
		token = bearer(r)
	}
	id, err := h.svc.VerifyAccess(r.Context(), token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"valid":      true,
		"account_id": id.AccountID,
		"kind":       id.Kind,
		"expires_at": id.ExpiresAt,
	})
}

// Logout handles POST /api/auth/logout with a refresh token in the body or a bearer access token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		httpx.Error(w, http.StatusServiceUnavailable, "auth not configured")
		return
	}
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = httpx.Decode(r, &req)
	if err := h.svc.Logout(r.Context(), strings.TrimSpace(req.RefreshToken)); err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// RequestPasswordReset handles POST /api/auth/password/reset/request.
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string `json:"identifier"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.RequestPasswordReset(r.Context(), req.Identifier); err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "if the account exists, a reset code has been sent"})
}

// ResetPassword handles POST /api/auth/password/reset/confirm.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier      string `json:"identifier"`
		OTP             string `json:"otp"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Identifier, req.OTP, req.Password, req.ConfirmPassword); err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// GetProfile handles GET /api/auth/profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	acc, err := h.svc.Profile(r.Context(), caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounthandler.NewView(acc))
}

// UpdateProfile handles PUT /api/auth/profile.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	birthday, err := accounthandler.ParseBirthday(strings.TrimSpace(req.Birthday))
	if err != nil {
		httpx.FieldErrors(w, "validation failed", map[string]string{"birthday": "birthday must be YYYY-MM-DD"})
		return
	}
	acc, err := h.svc.UpdateProfile(r.Context(), caller, accountdomain.Profile{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Birthday:  birthday,
		Gender:    accountdomain.Gender(strings.TrimSpace(req.Gender)),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounthandler.NewView(acc))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if h.svc == nil {
		httpx.Error(w, http.StatusServiceUnavailable, "auth not configured")
		return false
	}
	if err := httpx.Decode(r, v); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.svc == nil {
		httpx.Error(w, http.StatusServiceUnavailable, "auth not configured")
		return "", false
	}
	id, err := rbac.Caller(r.Context())
	if err != nil {
		httpx.Error(w, http.StatusUnauthorized, err.Error())
		return "", false
	}
	return id, true
}

// writeError maps auth errors to the response envelope.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if httpx.Invalid(w, err) {
		return
	}
	switch {
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidRefreshToken),
		errors.Is(err, service.ErrRefreshTokenReuse),
		errors.Is(err, service.ErrSessionExpired),
		errors.Is(err, service.ErrInvalidAccessToken):
		httpx.Error(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrAccountNotEligible):
		httpx.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrOTPInvalid):
		httpx.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrAccountNotFound):
		httpx.Error(w, http.StatusNotFound, err.Error())
	default:
		h.log.Error("auth: request failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "internal error")
	}
}

func bearer(r *http.Request) string {
	const prefix = "Bearer "
	v := r.Header.Get("Authorization")
	if len(v) > len(prefix) && strings.EqualFold(v[:len(prefix)], prefix) {
		return strings.TrimSpace(v[len(prefix):])
	}
	return ""
}

var _ Auth = (*service.AuthService)(nil)
