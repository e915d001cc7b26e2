// Package domain defines the migration lifecycle event emitted on every
// bridge mutation: logins, DID attachments, wallet connections, phase
// changes, and credential issuance.
package domain

import "time"

// Migration event types.
const (
	EventLogin            = "login"
	EventDIDAttached      = "did_attached"
	EventWalletConnected  = "wallet_connected"
	EventPhaseChanged     = "phase_changed"
	EventCredentialIssued = "credential_issued"
)

// MigrationEvent records one step of a user's migration lifecycle. Best-effort
// observability data; never part of the correctness contract.
type MigrationEvent struct {
	EventType     string         `json:"eventType"`
	TraditionalID string         `json:"traditionalId"`
	DID           string         `json:"did,omitempty"`
	Phase         string         `json:"phase,omitempty"`
	Provider      string         `json:"provider,omitempty"`
	Protocol      string         `json:"protocol,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	OccurredAt    time.Time      `json:"occurredAt"`
}
