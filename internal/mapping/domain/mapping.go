// Package domain holds the identity mapping aggregate: the persisted record
// correlating one human's traditional identity with their DID and migration state.
package domain

import (
	"errors"
	"time"
)

// MigrationPhase is the ordered stage describing how much of a user's identity
// has moved from the legacy IdP to self-sovereign identity.
type MigrationPhase string

const (
	PhaseTraditional MigrationPhase = "traditional"
	PhasePreparation MigrationPhase = "preparation"
	PhaseHybrid      MigrationPhase = "hybrid"
	PhaseClaiming    MigrationPhase = "claiming"
	PhaseFullSSI     MigrationPhase = "full_ssi"
)

// phaseOrder maps each phase to its position in the migration lifecycle.
var phaseOrder = map[MigrationPhase]int{
	PhaseTraditional: 0,
	PhasePreparation: 1,
	PhaseHybrid:      2,
	PhaseClaiming:    3,
	PhaseFullSSI:     4,
}

// Rank returns the position of p in the migration lifecycle, or -1 for unknown phases.
func (p MigrationPhase) Rank() int {
	if r, ok := phaseOrder[p]; ok {
		return r
	}
	return -1
}

// Valid reports whether p is a known migration phase.
func (p MigrationPhase) Valid() bool {
	return p.Rank() >= 0
}

// MappingStatus is the lifecycle status of a mapping record.
type MappingStatus string

const (
	StatusActive    MappingStatus = "active"
	StatusPending   MappingStatus = "pending"
	StatusSuspended MappingStatus = "suspended"
	StatusRevoked   MappingStatus = "revoked"
)

// UserDetails is the structured profile sub-record carried on a mapping.
type UserDetails struct {
	FirstName   string
	LastName    string
	DisplayName string
	Username    string
	Roles       []string
	Attributes  map[string]any
}

// Mapping correlates a traditional identity (SAML NameID, OIDC sub, or email)
// with every authentication method the user has used, their DID, and their
// position in the migration lifecycle.
type Mapping struct {
	ID                 string
	TraditionalID      string
	Providers          []string
	Email              string
	PasswordHash       string // set only when the "email" provider is used
	DID                string
	DIDMethod          string
	WalletConnected    bool
	WalletConnectionID string
	MigrationPhase     MigrationPhase
	Status             MappingStatus
	UserDetails        UserDetails
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Validate validates the mapping for persistence. Returns an error describing
// the first validation failure.
func (m *Mapping) Validate() error {
	if m.TraditionalID == "" {
		return errors.New("traditional id is required")
	}
	if m.Email == "" {
		return errors.New("email is required")
	}
	if m.Status == "" {
		m.Status = StatusActive
	}
	if m.MigrationPhase == "" {
		m.MigrationPhase = PhaseTraditional
	}
	if !m.MigrationPhase.Valid() {
		return errors.New("unknown migration phase")
	}
	return nil
}

// DerivePhase computes the migration phase implied by the mapping's DID and
// wallet state. claiming and full_ssi are administrative phases and are never
// derived here.
func DerivePhase(hasDID, walletConnected bool) MigrationPhase {
	switch {
	case hasDID && walletConnected:
		return PhaseHybrid
	case hasDID:
		return PhasePreparation
	default:
		return PhaseTraditional
	}
}

// RecomputePhase re-derives the phase from the mapping's DID and wallet state,
// never lowering an administratively set phase. Phase is monotonic
// non-decreasing under normal flow.
func (m *Mapping) RecomputePhase() {
	derived := DerivePhase(m.DID != "", m.WalletConnected)
	if derived.Rank() > m.MigrationPhase.Rank() {
		m.MigrationPhase = derived
	}
}

// HasProvider reports whether provider is already recorded on the mapping.
func (m *Mapping) HasProvider(provider string) bool {
	for _, p := range m.Providers {
		if p == provider {
			return true
		}
	}
	return false
}

// MergeProviders returns the set-union of the mapping's providers and the
// given providers, preserving existing order and appending new ones.
func MergeProviders(existing, requested []string) []string {
	out := make([]string, 0, len(existing)+len(requested))
	seen := make(map[string]bool, len(existing)+len(requested))
	for _, p := range existing {
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range requested {
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
