// Package validate holds input normalisation and the field-level ValidationError shared by the services.
package validate

import (
	"errors"
	"regexp"
	"sort"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	// E.164: leading +, 8 to 15 digits, no leading zero.
	phonePattern = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)
)

var (
	errEmailRequired = errors.New("email is required")
	errEmailFormat   = errors.New("invalid email format")
	errPhoneRequired = errors.New("phone is required")
	errPhoneFormat   = errors.New("invalid phone number")
)

// ValidationError reports invalid input per field. Handlers render it as 400 with the field map.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Field returns a ValidationError for a single field.
func Field(name, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{name: msg}}
}

// Errors collects field errors; Err returns nil when none were added.
type Errors map[string]string

// Add records err under field when err is non-nil. The first error per field wins.
func (e Errors) Add(field string, err error) {
	if err == nil {
		return
	}
	if _, ok := e[field]; !ok {
		e[field] = err.Error()
	}
}

// Err returns the collected errors as a *ValidationError, or nil.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return &ValidationError{Fields: map[string]string(e)}
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone drops spaces, dashes and parentheses and prefixes "+" when missing,
// so "1 (555) 123-0001" and "+15551230001" store under the same key.
func NormalizePhone(phone string) string {
	p := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '\t':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
	if p != "" && !strings.HasPrefix(p, "+") {
		p = "+" + p
	}
	return p
}

// Email checks a normalised email address.
func Email(email string) error {
	if email == "" {
		return errEmailRequired
	}
	if !emailPattern.MatchString(email) {
		return errEmailFormat
	}
	return nil
}

// Phone checks a normalised phone number.
func Phone(phone string) error {
	if phone == "" {
		return errPhoneRequired
	}
	if !phonePattern.MatchString(phone) {
		return errPhoneFormat
	}
	return nil
}
