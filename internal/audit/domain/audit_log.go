package domain

import "time"

// AuditLog is one security-relevant event. AccountID is empty for anonymous actions.
type AuditLog struct {
	ID        string
	AccountID string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
