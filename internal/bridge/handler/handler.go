// Package handler exposes the bridge flows over HTTP: protocol login, email
// registration and login, wallet connection, credential issuance, round-trip
// VC login, and protocol translation.
package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"ssi-migration-bridge/internal/bridge/service"
	mappinghandler "ssi-migration-bridge/internal/mapping/handler"
	"ssi-migration-bridge/internal/platform/httpx"
	"ssi-migration-bridge/internal/platform/rbac"
	ssidomain "ssi-migration-bridge/internal/ssi/domain"
	"ssi-migration-bridge/internal/translator"
)

// Handler serves the bridge orchestration API.
type Handler struct {
	orch   *service.Orchestrator
	logger *zap.Logger
}

// New returns a bridge Handler.
func New(orch *service.Orchestrator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{orch: orch, logger: logger}
}

// Register mounts the bridge routes on the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/auth/register", h.register).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	r.HandleFunc("/auth/saml", h.samlLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/oidc", h.oidcLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/vc", h.vcLogin).Methods(http.MethodPost)
	r.HandleFunc("/mappings/{id}/wallet", h.connectWallet).Methods(http.MethodPost)
	r.HandleFunc("/mappings/{id}/credentials", h.issueCredential).Methods(http.MethodPost)
	r.HandleFunc("/mappings/{id}/credentials/convert", h.convertCredentials).Methods(http.MethodPost)
	r.HandleFunc("/translate", h.translate).Methods(http.MethodPost)
}

// authResponse is the JSON shape of a successful authentication.
type authResponse struct {
	Token     string                      `json:"token"`
	ExpiresAt time.Time                   `json:"expiresAt"`
	User      *mappinghandler.MappingView `json:"user"`
}

func toAuthResponse(result *service.AuthResult) *authResponse {
	return &authResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      mappinghandler.View(result.Mapping),
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid request body"})
		return
	}
	m, err := h.orch.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, mappinghandler.View(m))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid request body"})
		return
	}
	result, err := h.orch.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAuthResponse(result))
}

// samlRequest is the already-authenticated assertion the IdP adapter posts.
type samlRequest struct {
	NameID       string         `json:"nameId"`
	Issuer       string         `json:"issuer"`
	AuthnInstant time.Time      `json:"authnInstant"`
	Attributes   map[string]any `json:"attributes"`
}

func (h *Handler) samlLogin(w http.ResponseWriter, r *http.Request) {
	var req samlRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid request body"})
		return
	}
	assertion := &translator.SAMLAssertion{
		NameID:       req.NameID,
		Issuer:       req.Issuer,
		AuthnInstant: req.AuthnInstant,
		Attributes:   req.Attributes,
	}
	result, err := h.orch.ProcessAuthEvent(r.Context(), translator.ProtocolSAML, assertion)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAuthResponse(result))
}

func (h *Handler) oidcLogin(w http.ResponseWriter, r *http.Request) {
	var claims map[string]any
	if err := httpx.Decode(r, &claims); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid request body"})
		return
	}
	result, err := h.orch.ProcessAuthEvent(r.Context(), translator.ProtocolOIDC, claims)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAuthResponse(result))
}

type vcLoginRequest struct {
	Credential *ssidomain.VerifiableCredential `json:"credential"`
}

// vcLogin runs the round-trip VC flow. Failures are a structured result, not
// an error: the endpoint answers 401 with the safe reason.
func (h *Handler) vcLogin(w http.ResponseWriter, r *http.Request) {
	var req vcLoginRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid request body"})
		return
	}
	result := h.orch.ExecuteRoundTrip(r.Context(), req.Credential)
	if !result.Success {
		httpx.WriteJSON(w, http.StatusUnauthorized, result)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

type connectWalletRequest struct {
	Provider string `json:"provider"`
}

func (h *Handler) connectWallet(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.RequireAuthenticated(r.Context()); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	var req connectWalletRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid request body"})
		return
	}
	result, err := h.orch.ConnectWallet(r.Context(), mux.Vars(r)["id"], req.Provider)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

type issueCredentialRequest struct {
	Provider string         `json:"provider"`
	Type     string         `json:"type"`
	Claims   map[string]any `json:"claims"`
}

func (h *Handler) issueCredential(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.RequireAuthenticated(r.Context()); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	var req issueCredentialRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid request body"})
		return
	}
	vc, err := h.orch.IssueCredential(r.Context(), mux.Vars(r)["id"], req.Provider, req.Type, req.Claims)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, vc)
}

type convertRequest struct {
	Provider string `json:"provider"`
}

func (h *Handler) convertCredentials(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.RequireAuthenticated(r.Context()); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	var req convertRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid request body"})
		return
	}
	bundle, err := h.orch.ConvertIdentityToCredentials(r.Context(), mux.Vars(r)["id"], req.Provider)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, bundle)
}

type translateRequest struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Identity struct {
		ID          string         `json:"id"`
		Email       string         `json:"email"`
		FirstName   string         `json:"firstName"`
		LastName    string         `json:"lastName"`
		DisplayName string         `json:"displayName"`
		Roles       []string       `json:"roles"`
		Attributes  map[string]any `json:"attributes"`
		AuthTime    time.Time      `json:"authTime"`
	} `json:"identity"`
}

func (h *Handler) translate(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.RequireAuthenticated(r.Context()); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	var req translateRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid request body"})
		return
	}
	identity := &translator.NormalizedIdentity{
		ID:           req.Identity.ID,
		AuthProtocol: req.Source,
		Email:        req.Identity.Email,
		FirstName:    req.Identity.FirstName,
		LastName:     req.Identity.LastName,
		DisplayName:  req.Identity.DisplayName,
		Roles:        req.Identity.Roles,
		Attributes:   req.Identity.Attributes,
		AuthTime:     req.Identity.AuthTime,
	}
	result, err := h.orch.TranslateProtocol(r.Context(), identity, req.Source, req.Target)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}
