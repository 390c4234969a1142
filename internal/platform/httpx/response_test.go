package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-mirror/internal/platform/validate"
)

func TestJSON_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusCreated, map[string]string{"id": "a1"})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var got APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "success", got.Status)
	assert.Equal(t, map[string]interface{}{"id": "a1"}, got.Data)
}

func TestFieldErrors_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	FieldErrors(rec, "validation failed", map[string]string{"confirm_password": "Passwords do not match."})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var got APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "error", got.Status)
	assert.Equal(t, "Passwords do not match.", got.Fields["confirm_password"])
}

func TestDecode(t *testing.T) {
	var v struct {
		Email string `json:"email"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@x.com","extra":1}`))
	require.NoError(t, Decode(r, &v))
	assert.Equal(t, "a@x.com", v.Email)

	bad := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.ErrorIs(t, Decode(bad, &v), ErrBadBody)
}

func TestInvalid(t *testing.T) {
	rec := httptest.NewRecorder()
	assert.False(t, Invalid(rec, ErrBadBody))

	rec = httptest.NewRecorder()
	require.True(t, Invalid(rec, validate.Field("email", "invalid email format")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var got APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "invalid email format", got.Fields["email"])
}
