package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	mappingdomain "ssi-migration-bridge/internal/mapping/domain"
	"ssi-migration-bridge/internal/ssi/did"
	ssidomain "ssi-migration-bridge/internal/ssi/domain"
	telemetrydomain "ssi-migration-bridge/internal/telemetry/domain"
	"ssi-migration-bridge/internal/translator"
)

// WalletConnectResult is the outcome of the connect-wallet flow.
type WalletConnectResult struct {
	DID           string `json:"did"`
	ConnectionID  string `json:"connectionId"`
	Invitation    string `json:"invitation"`
	InvitationURL string `json:"invitationUrl"`
}

// CredentialBundle is the fixed fan-out of convert-identity-to-credentials.
// RoleCredential is nil when the mapping has no roles.
type CredentialBundle struct {
	IdentityCredential *ssidomain.VerifiableCredential `json:"identityCredential"`
	EmailCredential    *ssidomain.VerifiableCredential `json:"emailCredential"`
	RoleCredential     *ssidomain.VerifiableCredential `json:"roleCredential,omitempty"`
}

// RoundTripResult is the structured outcome of the unauthenticated VC login
// flow. Error is a safe, user-facing reason; it never carries internals.
type RoundTripResult struct {
	Success bool                   `json:"success"`
	Token   string                 `json:"token,omitempty"`
	Mapping *mappingdomain.Mapping `json:"user,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// TranslationResult holds the output of one protocol-to-protocol translation;
// exactly one payload field is set, matching the target protocol.
type TranslationResult struct {
	Target      string                    `json:"target"`
	DIDDocument *ssidomain.DIDDocument    `json:"didDocument,omitempty"`
	SAML        *translator.SAMLAssertion `json:"saml,omitempty"`
	OIDC        map[string]any            `json:"oidc,omitempty"`
}

// ConnectWallet runs the wallet-connection flow: ensure a DID exists (minting
// one when absent), request a connection invitation, and record the
// connection on the mapping. Steps are sequential; a failure aborts without
// rolling back earlier steps, and re-invocation is the compensating action
// since every step is idempotent.
func (o *Orchestrator) ConnectWallet(ctx context.Context, traditionalID, provider string) (*WalletConnectResult, error) {
	m, err := o.correlator.FindByTraditionalID(ctx, traditionalID, []string{provider})
	if err != nil {
		return nil, err
	}

	if m.DID == "" {
		props := map[string]any{"email": m.Email}
		if m.UserDetails.DisplayName != "" {
			props["displayName"] = m.UserDetails.DisplayName
		}
		createCtx, cancel := o.collabCtx(ctx)
		newDID, _, err := o.registry.Create(createCtx, traditionalID, "key", &did.CreateOptions{ServiceProperties: props})
		cancel()
		if err != nil {
			return nil, collabErr(err)
		}
		if m, err = o.correlator.AddDID(ctx, traditionalID, []string{provider}, newDID, "key"); err != nil {
			return nil, err
		}
		o.emitEvent(&telemetrydomain.MigrationEvent{
			EventType:     telemetrydomain.EventDIDAttached,
			TraditionalID: m.TraditionalID,
			DID:           m.DID,
			Phase:         string(m.MigrationPhase),
			Provider:      provider,
		})
	}

	inviteCtx, cancel := o.collabCtx(ctx)
	invitation, err := o.connector.CreateInvitation(inviteCtx, traditionalID, m.DID)
	cancel()
	if err != nil {
		return nil, collabErr(err)
	}

	m, err = o.correlator.ConnectWallet(ctx, traditionalID, []string{provider}, invitation.ConnectionID)
	if err != nil {
		return nil, err
	}

	o.emitEvent(&telemetrydomain.MigrationEvent{
		EventType:     telemetrydomain.EventWalletConnected,
		TraditionalID: m.TraditionalID,
		DID:           m.DID,
		Phase:         string(m.MigrationPhase),
		Provider:      provider,
	})
	o.auditEvent(ctx, m.TraditionalID, "connect_wallet", "wallet",
		metadataJSON(map[string]any{"connectionId": invitation.ConnectionID}))

	return &WalletConnectResult{
		DID:           m.DID,
		ConnectionID:  invitation.ConnectionID,
		Invitation:    invitation.Invitation,
		InvitationURL: invitation.InvitationURL,
	}, nil
}

// IssueCredential mints a credential of the given type for the mapping's DID.
// Fails with ErrPreconditionFailed when the mapping has no DID yet: the
// caller must run the wallet-connect flow first. Default claims (email,
// display name) are merged under caller-supplied claims.
func (o *Orchestrator) IssueCredential(ctx context.Context, traditionalID, provider, credType string, claims map[string]any) (*ssidomain.VerifiableCredential, error) {
	m, err := o.correlator.FindByTraditionalID(ctx, traditionalID, []string{provider})
	if err != nil {
		return nil, err
	}
	if m.DID == "" {
		return nil, fmt.Errorf("%w: mapping %s has no DID; connect a wallet first", ErrPreconditionFailed, traditionalID)
	}

	merged := map[string]any{"email": m.Email}
	if m.UserDetails.DisplayName != "" {
		merged["displayName"] = m.UserDetails.DisplayName
	}
	for k, v := range claims {
		merged[k] = v
	}

	issueCtx, cancel := o.collabCtx(ctx)
	vc, err := o.issuer.Create(issueCtx, credType, m.DID, merged)
	cancel()
	if err != nil {
		return nil, collabErr(err)
	}

	o.emitEvent(&telemetrydomain.MigrationEvent{
		EventType:     telemetrydomain.EventCredentialIssued,
		TraditionalID: m.TraditionalID,
		DID:           m.DID,
		Phase:         string(m.MigrationPhase),
		Metadata:      map[string]any{"credentialType": credType},
	})
	o.auditEvent(ctx, m.TraditionalID, "issue_credential", "credential",
		metadataJSON(map[string]any{"type": credType, "credentialId": vc.ID}))
	return vc, nil
}

// ConvertIdentityToCredentials fans out credential issuance for the fixed
// claim sets derived from the mapping. The role credential is only emitted
// when the mapping carries roles.
func (o *Orchestrator) ConvertIdentityToCredentials(ctx context.Context, traditionalID, provider string) (*CredentialBundle, error) {
	m, err := o.correlator.FindByTraditionalID(ctx, traditionalID, []string{provider})
	if err != nil {
		return nil, err
	}
	if m.DID == "" {
		return nil, fmt.Errorf("%w: mapping %s has no DID; connect a wallet first", ErrPreconditionFailed, traditionalID)
	}

	identityClaims := map[string]any{
		"email":       m.Email,
		"firstName":   m.UserDetails.FirstName,
		"lastName":    m.UserDetails.LastName,
		"displayName": m.UserDetails.DisplayName,
		"roles":       m.UserDetails.Roles,
	}
	bundle := &CredentialBundle{}
	if bundle.IdentityCredential, err = o.IssueCredential(ctx, traditionalID, provider, "IdentityCredential", identityClaims); err != nil {
		return nil, err
	}
	if bundle.EmailCredential, err = o.IssueCredential(ctx, traditionalID, provider, "EmailCredential", map[string]any{"email": m.Email}); err != nil {
		return nil, err
	}
	if len(m.UserDetails.Roles) > 0 {
		if bundle.RoleCredential, err = o.IssueCredential(ctx, traditionalID, provider, "RoleCredential", map[string]any{"roles": m.UserDetails.Roles}); err != nil {
			return nil, err
		}
	}
	return bundle, nil
}

// ExecuteRoundTrip runs the unauthenticated VC login flow: verify the
// credential (unless its issuer is an allowed bootstrap issuer), extract the
// identity, find-or-create the mapping, and issue a session token. Failures
// return a structured result instead of an error so the endpoint never leaks
// internals.
func (o *Orchestrator) ExecuteRoundTrip(ctx context.Context, vc *ssidomain.VerifiableCredential) *RoundTripResult {
	if vc == nil {
		return &RoundTripResult{Error: "credential is required"}
	}

	if !o.unverifiedIssuers[vc.Issuer] {
		verifyCtx, cancel := o.collabCtx(ctx)
		outcome := o.issuer.Verify(verifyCtx, vc)
		cancel()
		if !outcome.Verified {
			o.logger.Info("round-trip credential rejected",
				zap.String("issuer", vc.Issuer),
				zap.String("reason", outcome.Error))
			o.auditEvent(ctx, "", "login_failure", "auth", `{"protocol":"vc"}`)
			return &RoundTripResult{Error: "credential verification failed"}
		}
	} else {
		o.logger.Warn("skipping verification for allowed bootstrap issuer",
			zap.String("issuer", vc.Issuer))
	}

	identity, err := o.translator.FromCredential(vc)
	if err != nil {
		o.logger.Info("round-trip credential rejected", zap.Error(err))
		return &RoundTripResult{Error: "credential is malformed"}
	}

	m, err := o.correlator.FindOrCreate(ctx, identity, []string{translator.ProtocolVC})
	if err != nil {
		o.logger.Error("round-trip mapping resolution failed", zap.Error(err))
		return &RoundTripResult{Error: "login failed"}
	}
	result, err := o.issueSession(identity, m)
	if err != nil {
		o.logger.Error("round-trip token issuance failed", zap.Error(err))
		return &RoundTripResult{Error: "login failed"}
	}

	o.emitEvent(&telemetrydomain.MigrationEvent{
		EventType:     telemetrydomain.EventLogin,
		TraditionalID: m.TraditionalID,
		DID:           m.DID,
		Phase:         string(m.MigrationPhase),
		Provider:      identity.AuthProvider,
		Protocol:      translator.ProtocolVC,
	})
	o.auditEvent(ctx, m.TraditionalID, "login", "auth", `{"protocol":"vc"}`)
	return &RoundTripResult{Success: true, Token: result.Token, Mapping: m}
}

// TranslateProtocol converts a normalized identity between protocol
// representations. Four directions are supported: saml→did, oidc→did,
// did→saml, and did→oidc. Translating toward DID requires the identity's
// mapping to carry a DID already.
func (o *Orchestrator) TranslateProtocol(ctx context.Context, identity *translator.NormalizedIdentity, source, target string) (*TranslationResult, error) {
	if identity == nil {
		return nil, fmt.Errorf("%w: identity is required", translator.ErrInvalidInput)
	}

	switch {
	case (source == translator.ProtocolSAML || source == translator.ProtocolOIDC) && target == translator.ProtocolDID:
		m, err := o.correlator.FindByTraditionalID(ctx, identity.ID, []string{source})
		if err != nil {
			return nil, err
		}
		if m.DID == "" {
			return nil, fmt.Errorf("%w: mapping %s has no DID; connect a wallet first", ErrPreconditionFailed, identity.ID)
		}
		resolveCtx, cancel := o.collabCtx(ctx)
		doc, err := o.registry.Resolve(resolveCtx, m.DID)
		cancel()
		if err != nil {
			if errors.Is(err, did.ErrNotFound) {
				return nil, fmt.Errorf("%w: did %s is not registered", ErrPreconditionFailed, m.DID)
			}
			return nil, collabErr(err)
		}
		return &TranslationResult{Target: target, DIDDocument: doc}, nil

	case source == translator.ProtocolDID && target == translator.ProtocolSAML:
		assertion, err := o.translator.ToSAML(identity)
		if err != nil {
			return nil, err
		}
		return &TranslationResult{Target: target, SAML: assertion}, nil

	case source == translator.ProtocolDID && target == translator.ProtocolOIDC:
		claims, err := o.translator.ToOIDC(identity)
		if err != nil {
			return nil, err
		}
		return &TranslationResult{Target: target, OIDC: claims}, nil

	default:
		return nil, fmt.Errorf("%w: %s to %s", ErrUnsupportedTranslation, source, target)
	}
}
