package domain

import (
	"encoding/json"
	"time"
)

// Account lifecycle event types.
const (
	EventAccountRegistered    = "account.registered"
	EventAccountEmailVerified = "account.email_verified"
	EventAccountApproved      = "account.approved"
	EventAccountMirrored      = "account.mirrored"
	EventAuthLogin            = "auth.login"
	EventAuthLogout           = "auth.logout"
)

// Event is an account lifecycle or auth event, published to the OTel log pipeline and Kafka.
type Event struct {
	Type      string          `json:"type"`
	AccountID string          `json:"account_id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Kind      string          `json:"kind,omitempty"`
	Source    string          `json:"source,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
