// Package domain defines the Account entity and its lifecycle rules.
package domain

import (
	"errors"
	"strings"
	"time"
)

// Kind is the account tier. PRIMARY accounts own MEMBER accounts.
type Kind string

const (
	KindPrimary Kind = "PRIMARY"
	KindMember  Kind = "MEMBER"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindPrimary || k == KindMember
}

// MirrorAuthority is the name the external platform uses for this kind.
func (k Kind) MirrorAuthority() string {
	switch k {
	case KindPrimary:
		return "CUSTOMER"
	case KindMember:
		return "CUSTOMER_USER"
	default:
		return ""
	}
}

// Gender choices accepted on the profile; empty means not provided.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

// Valid reports whether g is empty or one of the known choices.
func (g Gender) Valid() bool {
	switch g {
	case "", GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// Account is a registered user. MEMBER accounts reference their PRIMARY by ParentID.
type Account struct {
	ID            string
	Email         string
	Phone         string
	PasswordHash  string
	Kind          Kind
	ParentID      string // empty for PRIMARY
	Active        bool
	EmailVerified bool
	Approved      bool
	ApprovedBy    string
	ApprovedAt    *time.Time
	Profile
	MirrorID  string // id of the mirrored record; empty until mirrored
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile holds the user-editable fields.
type Profile struct {
	FirstName string
	LastName  string
	Birthday  *time.Time
	Gender    Gender
}

// Validate checks the invariants required before persisting a new account.
func (a *Account) Validate() error {
	if a.Email == "" {
		return errors.New("email is required")
	}
	if a.Phone == "" {
		return errors.New("phone is required")
	}
	if !a.Kind.Valid() {
		return errors.New("account kind must be PRIMARY or MEMBER")
	}
	if a.Kind == KindMember && a.ParentID == "" {
		return errors.New("member account requires a parent")
	}
	if a.Kind == KindPrimary && a.ParentID != "" {
		return errors.New("primary account cannot have a parent")
	}
	if !a.Gender.Valid() {
		return errors.New("gender must be Male, Female or Other")
	}
	return nil
}

// Pending reports whether the account is a MEMBER still awaiting parent approval.
func (a *Account) Pending() bool {
	return a.Kind == KindMember && !a.Approved
}

// DisplayName returns "First Last", falling back to the email.
func (a *Account) DisplayName() string {
	name := strings.TrimSpace(a.FirstName + " " + a.LastName)
	if name == "" {
		return a.Email
	}
	return name
}
