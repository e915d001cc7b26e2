// Package service composes the correlator, translator, and SSI collaborators
// into the user-facing bridge flows: login processing, wallet connection,
// credential issuance, round-trip VC login, and protocol translation.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	auditpkg "ssi-migration-bridge/internal/audit"
	mappingdomain "ssi-migration-bridge/internal/mapping/domain"
	mappingservice "ssi-migration-bridge/internal/mapping/service"
	"ssi-migration-bridge/internal/security"
	"ssi-migration-bridge/internal/ssi/credential"
	"ssi-migration-bridge/internal/ssi/did"
	ssidomain "ssi-migration-bridge/internal/ssi/domain"
	"ssi-migration-bridge/internal/ssi/wallet"
	"ssi-migration-bridge/internal/telemetry"
	telemetrydomain "ssi-migration-bridge/internal/telemetry/domain"
	"ssi-migration-bridge/internal/translator"
)

// Sentinel errors for the orchestrator; handler maps them to HTTP codes.
var (
	ErrPreconditionFailed     = errors.New("operation requires state the mapping does not have")
	ErrUnsupportedTranslation = errors.New("unsupported protocol translation")
	ErrAuthenticationFailed   = errors.New("authentication failed")
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrDependencyTimeout      = errors.New("collaborator dependency timed out")
)

// Correlator is the mapping lifecycle contract the orchestrator needs.
// Satisfied by mapping/service.Correlator; narrowed for test doubles.
type Correlator interface {
	FindByTraditionalID(ctx context.Context, traditionalID string, providers []string) (*mappingdomain.Mapping, error)
	FindByEmail(ctx context.Context, email string) (*mappingdomain.Mapping, error)
	Create(ctx context.Context, m *mappingdomain.Mapping) (*mappingdomain.Mapping, error)
	AddDID(ctx context.Context, traditionalID string, providers []string, did, method string) (*mappingdomain.Mapping, error)
	ConnectWallet(ctx context.Context, traditionalID string, providers []string, connectionID string) (*mappingdomain.Mapping, error)
	FindOrCreate(ctx context.Context, identity *translator.NormalizedIdentity, providers []string) (*mappingdomain.Mapping, error)
}

// CredentialIssuer is the credential collaborator contract the orchestrator needs.
type CredentialIssuer interface {
	Create(ctx context.Context, credType, subjectDID string, claims map[string]any) (*ssidomain.VerifiableCredential, error)
	Verify(ctx context.Context, vc *ssidomain.VerifiableCredential) credential.VerificationResult
}

// AuthResult is the outcome of a successful authentication flow.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	Mapping   *mappingdomain.Mapping
}

// Orchestrator implements the bridge flows. All collaborator calls are bounded
// by the configured dependency timeout; mapping mutations already committed
// are never rolled back (flows are safe to re-run).
type Orchestrator struct {
	correlator Correlator
	translator *translator.Translator
	registry   did.Registry
	issuer     CredentialIssuer
	connector  wallet.Connector
	hasher     *security.Hasher
	emitter    telemetry.EventEmitter
	audit      auditpkg.AuditLogger
	logger     *zap.Logger

	depTimeout        time.Duration
	unverifiedIssuers map[string]bool
	now               func() time.Time
}

// New returns an Orchestrator. unverifiedIssuers is the set of issuer DIDs
// whose credentials skip verification during round-trip login (bootstrap/demo
// escape hatch; empty in production). now may be nil.
func New(
	correlator Correlator,
	trans *translator.Translator,
	registry did.Registry,
	issuer CredentialIssuer,
	connector wallet.Connector,
	hasher *security.Hasher,
	emitter telemetry.EventEmitter,
	auditLogger auditpkg.AuditLogger,
	logger *zap.Logger,
	depTimeout time.Duration,
	unverifiedIssuers map[string]bool,
	now func() time.Time,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if depTimeout <= 0 {
		depTimeout = 10 * time.Second
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{
		correlator:        correlator,
		translator:        trans,
		registry:          registry,
		issuer:            issuer,
		connector:         connector,
		hasher:            hasher,
		emitter:           emitter,
		audit:             auditLogger,
		logger:            logger,
		depTimeout:        depTimeout,
		unverifiedIssuers: unverifiedIssuers,
		now:               now,
	}
}

// ProcessAuthEvent handles an already-authenticated protocol payload:
// translate to a normalized identity, find-or-create the mapping, and issue a
// session token carrying the migration phase. Safe to re-run: the same
// payload resolves the same mapping and yields a fresh token.
func (o *Orchestrator) ProcessAuthEvent(ctx context.Context, protocol string, payload any) (*AuthResult, error) {
	identity, err := o.extract(protocol, payload)
	if err != nil {
		return nil, err
	}
	m, err := o.correlator.FindOrCreate(ctx, identity, []string{protocol})
	if err != nil {
		return nil, err
	}
	result, err := o.issueSession(identity, m)
	if err != nil {
		return nil, err
	}

	o.emitEvent(&telemetrydomain.MigrationEvent{
		EventType:     telemetrydomain.EventLogin,
		TraditionalID: m.TraditionalID,
		DID:           m.DID,
		Phase:         string(m.MigrationPhase),
		Provider:      identity.AuthProvider,
		Protocol:      protocol,
	})
	o.auditEvent(ctx, m.TraditionalID, "login", "auth", fmt.Sprintf(`{"protocol":%q}`, protocol))
	return result, nil
}

// Register creates an email/password mapping. The email is the traditional id
// for locally registered users.
func (o *Orchestrator) Register(ctx context.Context, email, password, name string) (*mappingdomain.Mapping, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", mappingservice.ErrInvalidInput)
	}
	if _, err := o.correlator.FindByEmail(ctx, email); err == nil {
		return nil, ErrEmailAlreadyRegistered
	} else if !errors.Is(err, mappingservice.ErrNotFound) {
		return nil, err
	}

	hash, err := o.hasher.Hash([]byte(password))
	if err != nil {
		return nil, err
	}
	m, err := o.correlator.Create(ctx, &mappingdomain.Mapping{
		TraditionalID: email,
		Providers:     []string{"email"},
		Email:         email,
		PasswordHash:  hash,
		Status:        mappingdomain.StatusActive,
		UserDetails:   mappingdomain.UserDetails{DisplayName: strings.TrimSpace(name)},
	})
	if err != nil {
		return nil, err
	}
	o.auditEvent(ctx, m.TraditionalID, "register", "auth", "")
	return m, nil
}

// Login authenticates the email/password path. Every failure kind (unknown
// email, wrong password, non-email account) collapses into the same generic
// error at this boundary; the precise kind is only logged.
func (o *Orchestrator) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	m, err := o.correlator.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, mappingservice.ErrNotFound) || errors.Is(err, mappingservice.ErrInvalidInput) {
			o.logger.Info("login failed", zap.String("reason", "unknown email"))
			o.auditEvent(ctx, "", "login_failure", "auth", "")
			return nil, ErrAuthenticationFailed
		}
		return nil, err
	}
	if !m.HasProvider("email") || m.PasswordHash == "" {
		o.logger.Info("login failed",
			zap.String("reason", "mapping has no email provider"),
			zap.String("traditional_id", m.TraditionalID))
		o.auditEvent(ctx, m.TraditionalID, "login_failure", "auth", "")
		return nil, ErrAuthenticationFailed
	}
	if err := o.hasher.Compare(m.PasswordHash, []byte(password)); err != nil {
		o.logger.Info("login failed",
			zap.String("reason", "bad password"),
			zap.String("traditional_id", m.TraditionalID))
		o.auditEvent(ctx, m.TraditionalID, "login_failure", "auth", "")
		return nil, ErrAuthenticationFailed
	}

	identity := &translator.NormalizedIdentity{
		ID:           m.TraditionalID,
		AuthProtocol: "email",
		AuthProvider: "email",
		Email:        m.Email,
		DisplayName:  m.UserDetails.DisplayName,
		Roles:        m.UserDetails.Roles,
		AuthTime:     o.now(),
	}
	result, err := o.issueSession(identity, m)
	if err != nil {
		return nil, err
	}
	o.emitEvent(&telemetrydomain.MigrationEvent{
		EventType:     telemetrydomain.EventLogin,
		TraditionalID: m.TraditionalID,
		DID:           m.DID,
		Phase:         string(m.MigrationPhase),
		Provider:      "email",
		Protocol:      "email",
	})
	o.auditEvent(ctx, m.TraditionalID, "login", "auth", `{"protocol":"email"}`)
	return result, nil
}

// extract dispatches the raw payload to the translator by protocol.
func (o *Orchestrator) extract(protocol string, payload any) (*translator.NormalizedIdentity, error) {
	switch protocol {
	case translator.ProtocolSAML:
		assertion, ok := payload.(*translator.SAMLAssertion)
		if !ok {
			return nil, fmt.Errorf("%w: expected SAML assertion payload", translator.ErrInvalidInput)
		}
		return o.translator.FromSAML(assertion)
	case translator.ProtocolOIDC:
		claims, ok := payload.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: expected OIDC claim set payload", translator.ErrInvalidInput)
		}
		return o.translator.FromOIDC(claims)
	case translator.ProtocolVC:
		vc, ok := payload.(*ssidomain.VerifiableCredential)
		if !ok {
			return nil, fmt.Errorf("%w: expected verifiable credential payload", translator.ErrInvalidInput)
		}
		return o.translator.FromCredential(vc)
	case translator.ProtocolDID:
		doc, ok := payload.(*ssidomain.DIDDocument)
		if !ok {
			return nil, fmt.Errorf("%w: expected DID document payload", translator.ErrInvalidInput)
		}
		return o.translator.FromDIDDocument(doc)
	default:
		return nil, fmt.Errorf("%w: unknown protocol %q", translator.ErrInvalidInput, protocol)
	}
}

func (o *Orchestrator) issueSession(identity *translator.NormalizedIdentity, m *mappingdomain.Mapping) (*AuthResult, error) {
	token, _, expiresAt, err := o.translator.IssueSession(identity, translator.SessionContext{
		Subject:         m.TraditionalID,
		DID:             m.DID,
		MigrationPhase:  string(m.MigrationPhase),
		WalletConnected: m.WalletConnected,
	})
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, ExpiresAt: expiresAt, Mapping: m}, nil
}

// collabCtx bounds a collaborator call with the dependency timeout.
func (o *Orchestrator) collabCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.depTimeout)
}

// collabErr classifies a collaborator failure: timeouts become
// ErrDependencyTimeout, everything else passes through.
func collabErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrDependencyTimeout, err)
	}
	return err
}

func (o *Orchestrator) emitEvent(event *telemetrydomain.MigrationEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = o.now()
	}
	telemetry.EmitAsync(o.emitter, event, o.logger)
}

func (o *Orchestrator) auditEvent(ctx context.Context, subject, action, resource, metadata string) {
	if o.audit == nil {
		return
	}
	o.audit.LogEvent(ctx, subject, action, resource, metadata)
}

func metadataJSON(v map[string]any) string {
	if len(v) == 0 {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
