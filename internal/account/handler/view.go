// Package handler holds the JSON representation of an account shared by the HTTP handlers.
package handler

import (
	"time"

	"account-mirror/internal/account/domain"
)

// DateLayout is the wire format of the birthday field.
const DateLayout = "2006-01-02"

// View is the public JSON form of an account. Credentials are never included.
type View struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone"`
	Kind          string     `json:"kind"`
	ParentID      string     `json:"parent_id,omitempty"`
	Active        bool       `json:"active"`
	EmailVerified bool       `json:"email_verified"`
	Approved      bool       `json:"approved"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Birthday      string     `json:"birthday,omitempty"`
	Gender        string     `json:"gender,omitempty"`
	Mirrored      bool       `json:"mirrored"`
	CreatedAt     time.Time  `json:"created_at"`
}

// NewView renders a.
func NewView(a *domain.Account) View {
	v := View{
		ID:            a.ID,
		Email:         a.Email,
		Phone:         a.Phone,
		Kind:          string(a.Kind),
		ParentID:      a.ParentID,
		Active:        a.Active,
		EmailVerified: a.EmailVerified,
		Approved:      a.Approved,
		ApprovedAt:    a.ApprovedAt,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		Gender:        string(a.Gender),
		Mirrored:      a.MirrorID != "",
		CreatedAt:     a.CreatedAt,
	}
	if a.Birthday != nil {
		v.Birthday = a.Birthday.Format(DateLayout)
	}
	return v
}

// NewViews renders each account in as.
func NewViews(as []*domain.Account) []View {
	out := make([]View, 0, len(as))
	for _, a := range as {
		out = append(out, NewView(a))
	}
	return out
}

// ParseBirthday parses an optional YYYY-MM-DD date; empty yields nil.
func ParseBirthday(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
