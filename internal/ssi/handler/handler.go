// Package handler exposes the simulated SSI collaborators over HTTP: DID
// resolution, credential schemas and verification, and wallet connection
// status polling.
package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"ssi-migration-bridge/internal/platform/httpx"
	"ssi-migration-bridge/internal/platform/rbac"
	"ssi-migration-bridge/internal/ssi/credential"
	"ssi-migration-bridge/internal/ssi/did"
	ssidomain "ssi-migration-bridge/internal/ssi/domain"
	"ssi-migration-bridge/internal/ssi/wallet"
)

// Handler serves the SSI collaborator API.
type Handler struct {
	registry  did.Registry
	issuer    credential.Issuer
	connector wallet.Connector
	logger    *zap.Logger
}

// New returns an SSI Handler.
func New(registry did.Registry, issuer credential.Issuer, connector wallet.Connector, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{registry: registry, issuer: issuer, connector: connector, logger: logger}
}

// Register mounts the SSI collaborator routes on the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/dids/{did}", h.resolveDID).Methods(http.MethodGet)
	r.HandleFunc("/dids/{did}", h.deactivateDID).Methods(http.MethodDelete)
	r.HandleFunc("/dids/{did}/verify", h.verifyDID).Methods(http.MethodGet)
	r.HandleFunc("/credentials", h.credentialsBySubject).Methods(http.MethodGet)
	r.HandleFunc("/credentials/schemas", h.schemas).Methods(http.MethodGet)
	r.HandleFunc("/credentials/verify", h.verifyCredential).Methods(http.MethodPost)
	r.HandleFunc("/wallet/connections/{id}", h.connectionStatus).Methods(http.MethodGet)
	r.HandleFunc("/wallet/connections/{id}/complete", h.completeConnection).Methods(http.MethodPost)
	r.HandleFunc("/wallet/connections/{id}/offers", h.offerCredential).Methods(http.MethodPost)
	r.HandleFunc("/wallet/offers/{id}", h.offerStatus).Methods(http.MethodGet)
	r.HandleFunc("/wallet/connections/{id}/presentations", h.requestPresentation).Methods(http.MethodPost)
	r.HandleFunc("/wallet/presentations/{id}", h.presentationStatus).Methods(http.MethodGet)
}

func (h *Handler) resolveDID(w http.ResponseWriter, r *http.Request) {
	doc, err := h.registry.Resolve(r.Context(), mux.Vars(r)["did"])
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) deactivateDID(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.RequireAdmin(r.Context()); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	deactivated, err := h.registry.Deactivate(r.Context(), mux.Vars(r)["did"])
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"deactivated": deactivated})
}

func (h *Handler) verifyDID(w http.ResponseWriter, r *http.Request) {
	active, err := h.registry.Verify(r.Context(), mux.Vars(r)["did"])
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"verified": active})
}

func (h *Handler) credentialsBySubject(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.RequireAuthenticated(r.Context()); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	subject := r.URL.Query().Get("subject")
	if subject == "" {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "subject query parameter is required"})
		return
	}
	creds, err := h.issuer.BySubject(r.Context(), subject)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, creds)
}

func (h *Handler) schemas(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.issuer.Schemas())
}

type verifyCredentialRequest struct {
	Credential *ssidomain.VerifiableCredential `json:"credential"`
}

func (h *Handler) verifyCredential(w http.ResponseWriter, r *http.Request) {
	var req verifyCredentialRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid request body"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.issuer.Verify(r.Context(), req.Credential))
}

func (h *Handler) connectionStatus(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.RequireAuthenticated(r.Context()); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	status, err := h.connector.ConnectionStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": status})
}

// completeConnection is the webhook-style hook a wallet agent calls when the
// user accepts an invitation, instead of waiting out the simulated delay.
func (h *Handler) completeConnection(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.RequireAuthenticated(r.Context()); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	if err := h.connector.CompleteConnection(r.Context(), mux.Vars(r)["id"]); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": wallet.StatusActive})
}

type offerRequest struct {
	Credential *ssidomain.VerifiableCredential `json:"credential"`
}

func (h *Handler) offerCredential(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.RequireAuthenticated(r.Context()); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	var req offerRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid request body"})
		return
	}
	offerID, err := h.connector.OfferCredential(r.Context(), mux.Vars(r)["id"], req.Credential)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]string{"offerId": offerID})
}

func (h *Handler) offerStatus(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.RequireAuthenticated(r.Context()); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	status, err := h.connector.OfferStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": status})
}

type presentationRequest struct {
	CredentialTypes []string `json:"credentialTypes"`
}

func (h *Handler) requestPresentation(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.RequireAuthenticated(r.Context()); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	var req presentationRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid request body"})
		return
	}
	requestID, err := h.connector.RequestPresentation(r.Context(), mux.Vars(r)["id"], req.CredentialTypes)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]string{"requestId": requestID})
}

func (h *Handler) presentationStatus(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.RequireAuthenticated(r.Context()); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	status, err := h.connector.PresentationStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, status)
}
