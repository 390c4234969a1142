package service

import (
	"errors"
	"sort"
	"strings"
)

// Sentinel errors for the registration workflow; the HTTP handler maps them to status codes.
var (
	ErrEmailTaken              = errors.New("email already registered")
	ErrPhoneTaken              = errors.New("phone already registered")
	ErrOTPInvalid              = errors.New("invalid or expired code")
	ErrOTPNotVerified          = errors.New("email or phone has not been verified")
	ErrInvitationInvalid       = errors.New("invitation is invalid, used or expired")
	ErrVerificationLinkInvalid = errors.New("verification link is invalid or expired")
)

// ConflictError names every identifier that is already registered. It matches
// ErrEmailTaken and/or ErrPhoneTaken under errors.Is.
type ConflictError struct {
	Fields map[string]string
	errs   []error
}

func (e *ConflictError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "already registered: " + strings.Join(keys, ", ")
}

func (e *ConflictError) Unwrap() []error { return e.errs }

type conflicts struct {
	fields map[string]string
	errs   []error
}

func (c *conflicts) email() {
	c.add("email", ErrEmailTaken)
}

func (c *conflicts) phone() {
	c.add("phone", ErrPhoneTaken)
}

func (c *conflicts) add(field string, err error) {
	if c.fields == nil {
		c.fields = make(map[string]string)
	}
	if _, ok := c.fields[field]; ok {
		return
	}
	c.fields[field] = err.Error()
	c.errs = append(c.errs, err)
}

func (c *conflicts) err() error {
	if len(c.errs) == 0 {
		return nil
	}
	return &ConflictError{Fields: c.fields, errs: c.errs}
}
