// Package wallet simulates the external wallet/agent connector: connection
// invitations, credential offers, and presentation requests. Pending states
// mature after a configured delay, observed when the caller polls; the
// simulator never runs background timers, so status checks are the only way
// state advances (plus the explicit completion hook for webhook-style tests).
package wallet

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ssi-migration-bridge/internal/ssi/domain"
	"ssi-migration-bridge/internal/ssi/store"
)

// Connection, offer, and presentation-request states.
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusAccepted  = "accepted"
	StatusSubmitted = "submitted"
)

// ErrNotFound is returned for unknown connection, offer, or request ids.
var ErrNotFound = errors.New("wallet record not found")

// Invitation is the out-of-band invitation handed to the user's wallet.
type Invitation struct {
	ConnectionID  string `json:"connectionId"`
	Invitation    string `json:"invitation"`
	InvitationURL string `json:"invitationUrl"`
}

// PresentationStatus is the polled state of a presentation request.
type PresentationStatus struct {
	Status       string               `json:"status"`
	Presentation *domain.Presentation `json:"presentation,omitempty"`
}

// CredentialSource lists credentials held by a subject DID. Satisfied by the
// credential issuer; narrowed here so the connector needs nothing else of it.
type CredentialSource interface {
	BySubject(ctx context.Context, subjectDID string) ([]domain.VerifiableCredential, error)
}

// Connector is the wallet collaborator contract.
type Connector interface {
	CreateInvitation(ctx context.Context, ownerID, subjectDID string) (*Invitation, error)
	ConnectionStatus(ctx context.Context, connectionID string) (string, error)
	CompleteConnection(ctx context.Context, connectionID string) error
	OfferCredential(ctx context.Context, connectionID string, vc *domain.VerifiableCredential) (string, error)
	OfferStatus(ctx context.Context, offerID string) (string, error)
	RequestPresentation(ctx context.Context, connectionID string, credTypes []string) (string, error)
	PresentationStatus(ctx context.Context, requestID string) (*PresentationStatus, error)
}

// connectionRecord is the stored shape of a wallet connection.
type connectionRecord struct {
	ConnectionID string    `json:"connectionId"`
	OwnerID      string    `json:"ownerId"`
	SubjectDID   string    `json:"subjectDid"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

// offerRecord is the stored shape of a credential offer.
type offerRecord struct {
	OfferID      string    `json:"offerId"`
	ConnectionID string    `json:"connectionId"`
	CredentialID string    `json:"credentialId"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

// requestRecord is the stored shape of a presentation request.
type requestRecord struct {
	RequestID    string    `json:"requestId"`
	ConnectionID string    `json:"connectionId"`
	CredTypes    []string  `json:"credTypes"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Simulator is a Connector backed by the document store.
type Simulator struct {
	docs        store.DocumentStore
	credentials CredentialSource
	delay       time.Duration
	baseURL     string
	now         func() time.Time
}

// NewSimulator returns a wallet simulator whose pending states mature after
// delay. credentials supplies presentation contents; now may be nil.
func NewSimulator(docs store.DocumentStore, credentials CredentialSource, delay time.Duration, baseURL string, now func() time.Time) *Simulator {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if baseURL == "" {
		baseURL = "https://bridge.local/wallet"
	}
	return &Simulator{docs: docs, credentials: credentials, delay: delay, baseURL: baseURL, now: now}
}

// CreateInvitation opens a pending connection and returns its invitation.
func (s *Simulator) CreateInvitation(ctx context.Context, ownerID, subjectDID string) (*Invitation, error) {
	rec := connectionRecord{
		ConnectionID: uuid.New().String(),
		OwnerID:      ownerID,
		SubjectDID:   subjectDID,
		Status:       StatusPending,
		CreatedAt:    s.now(),
	}
	if err := s.putConnection(ctx, &rec); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]string{
		"@type": "https://didcomm.org/out-of-band/1.1/invitation",
		"@id":   rec.ConnectionID,
		"label": "ssi-migration-bridge",
	})
	if err != nil {
		return nil, fmt.Errorf("encode invitation: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return &Invitation{
		ConnectionID:  rec.ConnectionID,
		Invitation:    encoded,
		InvitationURL: fmt.Sprintf("%s/invite?oob=%s", s.baseURL, encoded),
	}, nil
}

// ConnectionStatus returns the connection state, maturing pending connections
// whose delay has elapsed.
func (s *Simulator) ConnectionStatus(ctx context.Context, connectionID string) (string, error) {
	rec, err := s.getConnection(ctx, connectionID)
	if err != nil {
		return "", err
	}
	if rec.Status == StatusPending && s.matured(rec.CreatedAt) {
		rec.Status = StatusActive
		if err := s.putConnection(ctx, rec); err != nil {
			return "", err
		}
	}
	return rec.Status, nil
}

// CompleteConnection marks the connection active immediately, the way a real
// wallet webhook would.
func (s *Simulator) CompleteConnection(ctx context.Context, connectionID string) error {
	rec, err := s.getConnection(ctx, connectionID)
	if err != nil {
		return err
	}
	rec.Status = StatusActive
	return s.putConnection(ctx, rec)
}

// OfferCredential records a credential offer over the connection.
func (s *Simulator) OfferCredential(ctx context.Context, connectionID string, vc *domain.VerifiableCredential) (string, error) {
	if vc == nil {
		return "", errors.New("credential is required")
	}
	if _, err := s.getConnection(ctx, connectionID); err != nil {
		return "", err
	}
	rec := offerRecord{
		OfferID:      uuid.New().String(),
		ConnectionID: connectionID,
		CredentialID: vc.ID,
		Status:       StatusPending,
		CreatedAt:    s.now(),
	}
	payload, err := json.Marshal(&rec)
	if err != nil {
		return "", fmt.Errorf("encode offer: %w", err)
	}
	if err := s.docs.Put(ctx, &store.Document{
		Kind:    store.KindCredentialOffer,
		ID:      rec.OfferID,
		OwnerID: connectionID,
		Payload: payload,
	}); err != nil {
		return "", err
	}
	return rec.OfferID, nil
}

// OfferStatus returns the offer state, maturing pending offers to accepted.
func (s *Simulator) OfferStatus(ctx context.Context, offerID string) (string, error) {
	doc, err := s.docs.Get(ctx, store.KindCredentialOffer, offerID)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	var rec offerRecord
	if err := json.Unmarshal(doc.Payload, &rec); err != nil {
		return "", fmt.Errorf("decode offer: %w", err)
	}
	if rec.Status == StatusPending && s.matured(rec.CreatedAt) {
		rec.Status = StatusAccepted
		payload, err := json.Marshal(&rec)
		if err != nil {
			return "", fmt.Errorf("encode offer: %w", err)
		}
		doc.Payload = payload
		if err := s.docs.Put(ctx, doc); err != nil {
			return "", err
		}
	}
	return rec.Status, nil
}

// RequestPresentation asks the wallet to present credentials of the given types.
func (s *Simulator) RequestPresentation(ctx context.Context, connectionID string, credTypes []string) (string, error) {
	if _, err := s.getConnection(ctx, connectionID); err != nil {
		return "", err
	}
	rec := requestRecord{
		RequestID:    uuid.New().String(),
		ConnectionID: connectionID,
		CredTypes:    credTypes,
		Status:       StatusPending,
		CreatedAt:    s.now(),
	}
	payload, err := json.Marshal(&rec)
	if err != nil {
		return "", fmt.Errorf("encode presentation request: %w", err)
	}
	if err := s.docs.Put(ctx, &store.Document{
		Kind:    store.KindPresentationRequest,
		ID:      rec.RequestID,
		OwnerID: connectionID,
		Payload: payload,
	}); err != nil {
		return "", err
	}
	return rec.RequestID, nil
}

// PresentationStatus returns the request state; once matured, the simulated
// wallet submits a presentation holding the subject's matching credentials.
func (s *Simulator) PresentationStatus(ctx context.Context, requestID string) (*PresentationStatus, error) {
	doc, err := s.docs.Get(ctx, store.KindPresentationRequest, requestID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec requestRecord
	if err := json.Unmarshal(doc.Payload, &rec); err != nil {
		return nil, fmt.Errorf("decode presentation request: %w", err)
	}
	if rec.Status == StatusPending && !s.matured(rec.CreatedAt) {
		return &PresentationStatus{Status: StatusPending}, nil
	}
	if rec.Status == StatusPending {
		rec.Status = StatusSubmitted
		payload, err := json.Marshal(&rec)
		if err != nil {
			return nil, fmt.Errorf("encode presentation request: %w", err)
		}
		doc.Payload = payload
		if err := s.docs.Put(ctx, doc); err != nil {
			return nil, err
		}
	}

	conn, err := s.getConnection(ctx, rec.ConnectionID)
	if err != nil {
		return nil, err
	}
	presentation, err := s.buildPresentation(ctx, conn.SubjectDID, rec.CredTypes)
	if err != nil {
		return nil, err
	}
	return &PresentationStatus{Status: rec.Status, Presentation: presentation}, nil
}

func (s *Simulator) buildPresentation(ctx context.Context, subjectDID string, credTypes []string) (*domain.Presentation, error) {
	held, err := s.credentials.BySubject(ctx, subjectDID)
	if err != nil {
		return nil, err
	}
	var matched []domain.VerifiableCredential
	for _, vc := range held {
		if len(credTypes) == 0 {
			matched = append(matched, vc)
			continue
		}
		for _, ct := range credTypes {
			if vc.HasType(ct) {
				matched = append(matched, vc)
				break
			}
		}
	}
	return &domain.Presentation{
		Context:              []string{domain.CredentialContext},
		ID:                   "urn:uuid:" + uuid.New().String(),
		Type:                 []string{"VerifiablePresentation"},
		Holder:               subjectDID,
		VerifiableCredential: matched,
	}, nil
}

func (s *Simulator) matured(createdAt time.Time) bool {
	return !s.now().Before(createdAt.Add(s.delay))
}

func (s *Simulator) getConnection(ctx context.Context, connectionID string) (*connectionRecord, error) {
	doc, err := s.docs.Get(ctx, store.KindConnection, connectionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec connectionRecord
	if err := json.Unmarshal(doc.Payload, &rec); err != nil {
		return nil, fmt.Errorf("decode connection: %w", err)
	}
	return &rec, nil
}

func (s *Simulator) putConnection(ctx context.Context, rec *connectionRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode connection: %w", err)
	}
	return s.docs.Put(ctx, &store.Document{
		Kind:    store.KindConnection,
		ID:      rec.ConnectionID,
		OwnerID: rec.OwnerID,
		Subject: rec.SubjectDID,
		Payload: payload,
	})
}
