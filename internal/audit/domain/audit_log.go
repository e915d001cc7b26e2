package domain

import "time"

// AuditLog represents one audited bridge action.
type AuditLog struct {
	ID        string
	Subject   string // traditional id or mapping id the action concerned
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
