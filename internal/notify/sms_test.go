package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewSMSLocalClient_Defaults(t *testing.T) {
	client := NewSMSLocalClient("api-key", "", "")
	if client.BaseURL != "https://app.smslocal.in/api/smsapi" {
		t.Errorf("BaseURL = %q, want default", client.BaseURL)
	}
	if client.HTTPClient == nil || client.HTTPClient.Timeout != defaultSMSTimeout {
		t.Error("HTTPClient should be set with the default timeout")
	}
}

func TestSendOTP_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if r.Header.Get("Authorization") != "test-api-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["route"] != "otp" || body["numbers"] != "201234567" || body["variables"] != "4821" {
			t.Errorf("body = %v", body)
		}
		if body["sender_id"] != "ACME" {
			t.Errorf("sender_id = %q", body["sender_id"])
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewSMSLocalClient("test-api-key", server.URL, "ACME")
	if err := client.SendOTP(context.Background(), "+201234567", "4821"); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
}

func TestSendOTP_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid number"}`))
	}))
	defer server.Close()

	err := NewSMSLocalClient("k", server.URL, "").SendOTP(context.Background(), "1", "1234")
	if err == nil || !strings.Contains(err.Error(), "status=400") {
		t.Errorf("err = %v, want status=400", err)
	}

	if err := NewSMSLocalClient("", server.URL, "").SendOTP(context.Background(), "1", "1234"); err == nil {
		t.Error("missing API key should fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewSMSLocalClient("k", server.URL, "").SendOTP(ctx, "1", "1234"); err == nil {
		t.Error("cancelled context should fail")
	}
}
