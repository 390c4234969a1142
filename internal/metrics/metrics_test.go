package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentHandler_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(InstrumentHandler)
	r.Post("/api/accounts/{id}/approve", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	before := testutil.ToFloat64(httpRequests.WithLabelValues("POST", "/api/accounts/{id}/approve", "403"))
	req := httptest.NewRequest(http.MethodPost, "/api/accounts/abc-123/approve", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)
	after := testutil.ToFloat64(httpRequests.WithLabelValues("POST", "/api/accounts/{id}/approve", "403"))

	assert.Equal(t, before+1, after)
}

func TestWorkflowCounters(t *testing.T) {
	before := testutil.ToFloat64(registrations.WithLabelValues("MEMBER"))
	RecordRegistration("MEMBER")
	assert.Equal(t, before+1, testutil.ToFloat64(registrations.WithLabelValues("MEMBER")))

	beforeFail := testutil.ToFloat64(otpVerifications.WithLabelValues("failure"))
	RecordOTPVerification(false)
	assert.Equal(t, beforeFail+1, testutil.ToFloat64(otpVerifications.WithLabelValues("failure")))

	beforeMirror := testutil.ToFloat64(mirrorCalls.WithLabelValues("unknown", "success"))
	RecordMirrorCall("", 0, true)
	assert.Equal(t, beforeMirror+1, testutil.ToFloat64(mirrorCalls.WithLabelValues("unknown", "success")))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	RecordLogin("password", true)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "account_mirror_auth_logins_total"))
}
