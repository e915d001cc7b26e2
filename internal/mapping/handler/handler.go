// Package handler exposes the identity-mapping administrative API over HTTP.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"ssi-migration-bridge/internal/mapping/domain"
	"ssi-migration-bridge/internal/mapping/repository"
	"ssi-migration-bridge/internal/mapping/service"
	"ssi-migration-bridge/internal/platform/httpx"
	"ssi-migration-bridge/internal/platform/rbac"
)

// Service is the correlator surface the handler needs.
type Service interface {
	FindByTraditionalID(ctx context.Context, traditionalID string, providers []string) (*domain.Mapping, error)
	FindByDID(ctx context.Context, did string) (*domain.Mapping, error)
	FindByEmail(ctx context.Context, email string) (*domain.Mapping, error)
	Create(ctx context.Context, m *domain.Mapping) (*domain.Mapping, error)
	Update(ctx context.Context, traditionalID string, providers []string, p service.Patch) (*domain.Mapping, error)
	AddDID(ctx context.Context, traditionalID string, providers []string, did, method string) (*domain.Mapping, error)
	UpdateMigrationPhase(ctx context.Context, traditionalID string, providers []string, phase domain.MigrationPhase) (*domain.Mapping, error)
	Delete(ctx context.Context, traditionalID string, providers []string) (bool, error)
	Find(ctx context.Context, f repository.Filter, limit, offset int) ([]*domain.Mapping, error)
	CountByPhase(ctx context.Context) (map[domain.MigrationPhase]int, error)
}

// Handler serves the mapping API.
type Handler struct {
	svc    Service
	logger *zap.Logger
}

// New returns a mapping Handler.
func New(svc Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the mapping routes on the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/mappings", h.list).Methods(http.MethodGet)
	r.HandleFunc("/mappings", h.create).Methods(http.MethodPost)
	r.HandleFunc("/mappings/stats/phases", h.phaseCounts).Methods(http.MethodGet)
	r.HandleFunc("/mappings/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/mappings/{id}", h.update).Methods(http.MethodPatch)
	r.HandleFunc("/mappings/{id}", h.delete).Methods(http.MethodDelete)
	r.HandleFunc("/mappings/{id}/did", h.addDID).Methods(http.MethodPost)
	r.HandleFunc("/mappings/{id}/phase", h.updatePhase).Methods(http.MethodPut)
}

// UserDetailsView is the JSON shape of a mapping's profile sub-record.
type UserDetailsView struct {
	FirstName   string         `json:"firstName,omitempty"`
	LastName    string         `json:"lastName,omitempty"`
	DisplayName string         `json:"displayName,omitempty"`
	Username    string         `json:"username,omitempty"`
	Roles       []string       `json:"roles,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// MappingView is the JSON shape of a mapping. The password hash is never
// exposed.
type MappingView struct {
	ID                 string          `json:"id"`
	TraditionalID      string          `json:"traditionalId"`
	Providers          []string        `json:"providers"`
	Email              string          `json:"email"`
	DID                string          `json:"did,omitempty"`
	DIDMethod          string          `json:"didMethod,omitempty"`
	WalletConnected    bool            `json:"walletConnected"`
	WalletConnectionID string          `json:"walletConnectionId,omitempty"`
	MigrationPhase     string          `json:"migrationPhase"`
	Status             string          `json:"status"`
	UserDetails        UserDetailsView `json:"userDetails"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// View converts a domain mapping to its JSON shape.
func View(m *domain.Mapping) *MappingView {
	if m == nil {
		return nil
	}
	return &MappingView{
		ID:                 m.ID,
		TraditionalID:      m.TraditionalID,
		Providers:          m.Providers,
		Email:              m.Email,
		DID:                m.DID,
		DIDMethod:          m.DIDMethod,
		WalletConnected:    m.WalletConnected,
		WalletConnectionID: m.WalletConnectionID,
		MigrationPhase:     string(m.MigrationPhase),
		Status:             string(m.Status),
		UserDetails: UserDetailsView{
			FirstName:   m.UserDetails.FirstName,
			LastName:    m.UserDetails.LastName,
			DisplayName: m.UserDetails.DisplayName,
			Username:    m.UserDetails.Username,
			Roles:       m.UserDetails.Roles,
			Attributes:  m.UserDetails.Attributes,
		},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func viewList(ms []*domain.Mapping) []*MappingView {
	out := make([]*MappingView, 0, len(ms))
	for _, m := range ms {
		out = append(out, View(m))
	}
	return out
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.RequireAdmin(r.Context()); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	q := r.URL.Query()

	// Point lookups by did or email short-circuit the filtered enumeration.
	if did := q.Get("did"); did != "" {
		m, err := h.svc.FindByDID(r.Context(), did)
		if err != nil {
			httpx.WriteError(w, h.logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, []*MappingView{View(m)})
		return
	}
	if email := q.Get("email"); email != "" {
		m, err := h.svc.FindByEmail(r.Context(), email)
		if err != nil {
			httpx.WriteError(w, h.logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, []*MappingView{View(m)})
		return
	}

	f := repository.Filter{
		Phase:    domain.MigrationPhase(q.Get("phase")),
		Status:   domain.MappingStatus(q.Get("status")),
		Provider: q.Get("provider"),
	}
	if v := q.Get("hasDid"); v != "" {
		hasDID := v == "true"
		f.HasDID = &hasDID
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	ms, err := h.svc.Find(r.Context(), f, limit, offset)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, viewList(ms))
}

type createRequest struct {
	TraditionalID string          `json:"traditionalId"`
	Providers     []string        `json:"providers"`
	Email         string          `json:"email"`
	Status        string          `json:"status"`
	UserDetails   UserDetailsView `json:"userDetails"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.RequireAdmin(r.Context()); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	var req createRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid request body"})
		return
	}
	m, err := h.svc.Create(r.Context(), &domain.Mapping{
		TraditionalID: req.TraditionalID,
		Providers:     req.Providers,
		Email:         req.Email,
		Status:        domain.MappingStatus(req.Status),
		UserDetails: domain.UserDetails{
			FirstName:   req.UserDetails.FirstName,
			LastName:    req.UserDetails.LastName,
			DisplayName: req.UserDetails.DisplayName,
			Username:    req.UserDetails.Username,
			Roles:       req.UserDetails.Roles,
			Attributes:  req.UserDetails.Attributes,
		},
	})
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, View(m))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.RequireAuthenticated(r.Context()); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	id := mux.Vars(r)["id"]
	m, err := h.svc.FindByTraditionalID(r.Context(), id, queryProviders(r))
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, View(m))
}

type updateRequest struct {
	Providers       []string       `json:"providers"`
	Email           *string        `json:"email"`
	DID             *string        `json:"did"`
	DIDMethod       *string        `json:"didMethod"`
	WalletConnected *bool          `json:"walletConnected"`
	Status          *string        `json:"status"`
	FirstName       *string        `json:"firstName"`
	LastName        *string        `json:"lastName"`
	DisplayName     *string        `json:"displayName"`
	Roles           []string       `json:"roles"`
	Attributes      map[string]any `json:"attributes"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.RequireAdmin(r.Context()); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	var req updateRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid request body"})
		return
	}
	patch := service.Patch{
		Email:           req.Email,
		DID:             req.DID,
		DIDMethod:       req.DIDMethod,
		WalletConnected: req.WalletConnected,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		DisplayName:     req.DisplayName,
		Roles:           req.Roles,
		Attributes:      req.Attributes,
	}
	if req.Status != nil {
		status := domain.MappingStatus(*req.Status)
		patch.Status = &status
	}
	m, err := h.svc.Update(r.Context(), mux.Vars(r)["id"], req.Providers, patch)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, View(m))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.RequireAdmin(r.Context()); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	fullyRemoved, err := h.svc.Delete(r.Context(), mux.Vars(r)["id"], queryProviders(r))
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"fullyRemoved": fullyRemoved})
}

type addDIDRequest struct {
	DID       string   `json:"did"`
	Method    string   `json:"method"`
	Providers []string `json:"providers"`
}

func (h *Handler) addDID(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.RequireAuthenticated(r.Context()); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	var req addDIDRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid request body"})
		return
	}
	m, err := h.svc.AddDID(r.Context(), mux.Vars(r)["id"], req.Providers, req.DID, req.Method)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, View(m))
}

type updatePhaseRequest struct {
	Phase     string   `json:"phase"`
	Providers []string `json:"providers"`
}

// updatePhase is the administrative phase override; claiming and full_ssi are
// only reachable through here.
func (h *Handler) updatePhase(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.RequireAdmin(r.Context()); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	var req updatePhaseRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid request body"})
		return
	}
	m, err := h.svc.UpdateMigrationPhase(r.Context(), mux.Vars(r)["id"], req.Providers, domain.MigrationPhase(req.Phase))
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, View(m))
}

func (h *Handler) phaseCounts(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.RequireAdmin(r.Context()); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	counts, err := h.svc.CountByPhase(r.Context())
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	out := make(map[string]int, len(counts))
	for phase, n := range counts {
		out[string(phase)] = n
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func queryProviders(r *http.Request) []string {
	raw := r.URL.Query().Get("providers")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
