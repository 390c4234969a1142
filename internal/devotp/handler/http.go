// Package handler serves the dev-only OTP lookup endpoint.
package handler

import (
	"net/http"
	"strings"

	"account-mirror/internal/devotp"
	"account-mirror/internal/platform/httpx"
)

const devOTPNote = "DEV MODE ONLY"

// Handler reads codes from the dev store. Only mounted when dev OTP mode is enabled.
type Handler struct {
	store devotp.Store
}

// New returns a dev OTP handler.
func New(store devotp.Store) *Handler {
	return &Handler{store: store}
}

// GetOTP handles GET /dev/otp?identifier=.
func (h *Handler) GetOTP(w http.ResponseWriter, r *http.Request) {
	identifier := strings.TrimSpace(r.URL.Query().Get("identifier"))
	if identifier == "" {
		httpx.Error(w, http.StatusBadRequest, "identifier is required")
		return
	}
	if strings.Contains(identifier, "@") {
		identifier = strings.ToLower(identifier)
	}
	code, ok := h.store.Get(r.Context(), identifier)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "OTP not found or expired")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"otp": code, "note": devOTPNote})
}
