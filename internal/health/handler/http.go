// Package handler serves liveness and readiness over HTTP (/healthz) and grpc.health.v1.
package handler

import (
	"net/http"

	"account-mirror/internal/platform/httpx"
)

// Healthz answers 200 with per-dependency status when ready, 503 otherwise.
// Error details stay out of the body; only "ok" or "unavailable" is reported.
func Healthz(checker *Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
			return
		}
		ok, results := checker.Ready(r.Context())
		deps := make(map[string]string, len(results))
		for name, err := range results {
			if err != nil {
				deps[name] = "unavailable"
			} else {
				deps[name] = "ok"
			}
		}
		if !ok {
			httpx.Write(w, http.StatusServiceUnavailable, httpx.APIResponse{
				Status:  "error",
				Message: "not ready",
				Data:    map[string]any{"dependencies": deps},
			})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok", "dependencies": deps})
	}
}
