// Package httpx holds the JSON envelope shared by every HTTP handler.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"account-mirror/internal/platform/validate"
)

// MaxBodyBytes caps request bodies decoded by Decode.
const MaxBodyBytes = 1 << 20

// APIResponse is the envelope for every JSON response.
type APIResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message,omitempty"`
	Data    interface{}       `json:"data,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// JSON writes a success envelope.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	Write(w, status, APIResponse{Status: "success", Data: data})
}

// Error writes an error envelope with a message.
func Error(w http.ResponseWriter, status int, msg string) {
	Write(w, status, APIResponse{Status: "error", Message: msg})
}

// FieldErrors writes a 400 error envelope with per-field messages.
func FieldErrors(w http.ResponseWriter, msg string, fields map[string]string) {
	Write(w, http.StatusBadRequest, APIResponse{Status: "error", Message: msg, Fields: fields})
}

// Write encodes resp with the given status.
func Write(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// ErrBadBody is returned by Decode for an empty, oversized or malformed body.
var ErrBadBody = errors.New("invalid request body")

// Decode reads a JSON body into v. Unknown fields are ignored.
func Decode(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return ErrBadBody
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return ErrBadBody
	}
	return nil
}

// Invalid writes a 400 field error envelope when err is a *validate.ValidationError and reports whether it did.
func Invalid(w http.ResponseWriter, err error) bool {
	var ve *validate.ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	FieldErrors(w, "validation failed", ve.Fields)
	return true
}
