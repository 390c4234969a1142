package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"account-mirror/internal/devotp"
)

func TestGetOTP(t *testing.T) {
	store := devotp.NewMemoryStore()
	store.Put(context.Background(), "a@x.com", "4821", time.Now().UTC().Add(time.Minute))
	h := New(store)

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"found", "?identifier=A@X.com", http.StatusOK},
		{"missing identifier", "", http.StatusBadRequest},
		{"unknown", "?identifier=b@x.com", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.GetOTP(rec, httptest.NewRequest(http.MethodGet, "/api/dev/otp"+tt.query, nil))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status != http.StatusOK {
				return
			}
			var body struct {
				Data map[string]string `json:"data"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if body.Data["otp"] != "4821" || body.Data["note"] != devOTPNote {
				t.Errorf("data = %v", body.Data)
			}
		})
	}
}
