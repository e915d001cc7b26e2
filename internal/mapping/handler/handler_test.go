package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	"ssi-migration-bridge/internal/mapping/domain"
	"ssi-migration-bridge/internal/mapping/repository"
	"ssi-migration-bridge/internal/mapping/service"
	"ssi-migration-bridge/internal/server/middleware"
	"ssi-migration-bridge/internal/translator"
)

type fakeService struct {
	byID       map[string]*domain.Mapping
	created    *domain.Mapping
	deleted    string
	phaseSet   domain.MigrationPhase
	listFilter repository.Filter
	counts     map[domain.MigrationPhase]int
}

func newFakeService() *fakeService {
	return &fakeService{byID: map[string]*domain.Mapping{}}
}

func (f *fakeService) FindByTraditionalID(_ context.Context, traditionalID string, _ []string) (*domain.Mapping, error) {
	m, ok := f.byID[traditionalID]
	if !ok {
		return nil, service.ErrNotFound
	}
	return m, nil
}

func (f *fakeService) FindByDID(_ context.Context, did string) (*domain.Mapping, error) {
	for _, m := range f.byID {
		if m.DID == did {
			return m, nil
		}
	}
	return nil, service.ErrNotFound
}

func (f *fakeService) FindByEmail(_ context.Context, email string) (*domain.Mapping, error) {
	for _, m := range f.byID {
		if m.Email == email {
			return m, nil
		}
	}
	return nil, service.ErrNotFound
}

func (f *fakeService) Create(_ context.Context, m *domain.Mapping) (*domain.Mapping, error) {
	if err := m.Validate(); err != nil {
		return nil, service.ErrInvalidInput
	}
	m.ID = "gen-1"
	f.created = m
	f.byID[m.TraditionalID] = m
	return m, nil
}

func (f *fakeService) Update(_ context.Context, traditionalID string, _ []string, p service.Patch) (*domain.Mapping, error) {
	m, ok := f.byID[traditionalID]
	if !ok {
		return nil, service.ErrNotFound
	}
	if p.Email != nil {
		m.Email = *p.Email
	}
	return m, nil
}

func (f *fakeService) AddDID(_ context.Context, traditionalID string, _ []string, did, method string) (*domain.Mapping, error) {
	m, ok := f.byID[traditionalID]
	if !ok {
		return nil, service.ErrNotFound
	}
	m.DID = did
	m.DIDMethod = method
	m.RecomputePhase()
	return m, nil
}

func (f *fakeService) UpdateMigrationPhase(_ context.Context, traditionalID string, _ []string, phase domain.MigrationPhase) (*domain.Mapping, error) {
	m, ok := f.byID[traditionalID]
	if !ok {
		return nil, service.ErrNotFound
	}
	if !phase.Valid() {
		return nil, service.ErrInvalidInput
	}
	m.MigrationPhase = phase
	f.phaseSet = phase
	return m, nil
}

func (f *fakeService) Delete(_ context.Context, traditionalID string, _ []string) (bool, error) {
	if _, ok := f.byID[traditionalID]; !ok {
		return false, service.ErrNotFound
	}
	delete(f.byID, traditionalID)
	f.deleted = traditionalID
	return true, nil
}

func (f *fakeService) Find(_ context.Context, filter repository.Filter, _, _ int) ([]*domain.Mapping, error) {
	f.listFilter = filter
	out := make([]*domain.Mapping, 0, len(f.byID))
	for _, m := range f.byID {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeService) CountByPhase(_ context.Context) (map[domain.MigrationPhase]int, error) {
	return f.counts, nil
}

func sampleMapping() *domain.Mapping {
	return &domain.Mapping{
		ID:             "map-1",
		TraditionalID:  "alice@corp.example",
		Providers:      []string{"saml"},
		Email:          "alice@corp.example",
		PasswordHash:   "$2a$04$secret",
		MigrationPhase: domain.PhaseTraditional,
		Status:         domain.StatusActive,
		UserDetails:    domain.UserDetails{DisplayName: "Alice"},
		CreatedAt:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func do(t *testing.T, svc Service, method, path, body string, roles ...string) *httptest.ResponseRecorder {
	t.Helper()
	r := mux.NewRouter()
	New(svc, nil).Register(r)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if len(roles) > 0 {
		claims := &translator.SessionClaims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "tester"},
			Roles:            roles,
		}
		req = req.WithContext(middleware.WithSession(req.Context(), claims))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestGetMapping(t *testing.T) {
	svc := newFakeService()
	svc.byID["alice@corp.example"] = sampleMapping()

	rec := do(t, svc, http.MethodGet, "/mappings/alice@corp.example", "", "user")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var view MappingView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if view.TraditionalID != "alice@corp.example" || view.MigrationPhase != "traditional" {
		t.Fatalf("unexpected view: %+v", view)
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Fatal("password hash leaked in response")
	}
}

func TestGetMappingNotFound(t *testing.T) {
	rec := do(t, newFakeService(), http.MethodGet, "/mappings/ghost", "", "user")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListRequiresAdmin(t *testing.T) {
	svc := newFakeService()
	svc.byID["alice@corp.example"] = sampleMapping()

	rec := do(t, svc, http.MethodGet, "/mappings", "", "user")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin list: status = %d, want 403", rec.Code)
	}

	rec = do(t, svc, http.MethodGet, "/mappings", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous list: status = %d, want 401", rec.Code)
	}

	rec = do(t, svc, http.MethodGet, "/mappings", "", "admin")
	if rec.Code != http.StatusOK {
		t.Fatalf("admin list: status = %d, want 200", rec.Code)
	}
}

func TestListParsesFilter(t *testing.T) {
	svc := newFakeService()
	rec := do(t, svc, http.MethodGet, "/mappings?phase=hybrid&provider=saml&hasDid=true", "", "admin")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if svc.listFilter.Phase != domain.PhaseHybrid || svc.listFilter.Provider != "saml" {
		t.Fatalf("filter = %+v", svc.listFilter)
	}
	if svc.listFilter.HasDID == nil || !*svc.listFilter.HasDID {
		t.Fatal("hasDid=true not parsed into filter")
	}
}

func TestListByDID(t *testing.T) {
	svc := newFakeService()
	m := sampleMapping()
	m.DID = "did:key:zalice"
	svc.byID[m.TraditionalID] = m

	rec := do(t, svc, http.MethodGet, "/mappings?did=did:key:zalice", "", "admin")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var views []MappingView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(views) != 1 || views[0].DID != "did:key:zalice" {
		t.Fatalf("views = %+v", views)
	}
}

func TestCreateMapping(t *testing.T) {
	svc := newFakeService()
	body := `{"traditionalId":"bob@corp.example","providers":["oidc"],"email":"bob@corp.example","userDetails":{"displayName":"Bob"}}`

	rec := do(t, svc, http.MethodPost, "/mappings", body, "admin")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if svc.created == nil || svc.created.UserDetails.DisplayName != "Bob" {
		t.Fatalf("created = %+v", svc.created)
	}
}

func TestCreateMappingBadBody(t *testing.T) {
	rec := do(t, newFakeService(), http.MethodPost, "/mappings", "{not json", "admin")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUpdatePhaseAdminOnly(t *testing.T) {
	svc := newFakeService()
	svc.byID["alice@corp.example"] = sampleMapping()
	body := `{"phase":"claiming"}`

	rec := do(t, svc, http.MethodPut, "/mappings/alice@corp.example/phase", body, "user")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin: status = %d, want 403", rec.Code)
	}

	rec = do(t, svc, http.MethodPut, "/mappings/alice@corp.example/phase", body, "admin")
	if rec.Code != http.StatusOK {
		t.Fatalf("admin: status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if svc.phaseSet != domain.PhaseClaiming {
		t.Fatalf("phase = %q, want claiming", svc.phaseSet)
	}
}

func TestAddDID(t *testing.T) {
	svc := newFakeService()
	svc.byID["alice@corp.example"] = sampleMapping()
	body := `{"did":"did:key:znew","method":"key"}`

	rec := do(t, svc, http.MethodPost, "/mappings/alice@corp.example/did", body, "user")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var view MappingView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if view.DID != "did:key:znew" || view.MigrationPhase != "preparation" {
		t.Fatalf("view = %+v", view)
	}
}

func TestDeleteMapping(t *testing.T) {
	svc := newFakeService()
	svc.byID["alice@corp.example"] = sampleMapping()

	rec := do(t, svc, http.MethodDelete, "/mappings/alice@corp.example", "", "admin")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !body["fullyRemoved"] {
		t.Fatal("expected fullyRemoved=true")
	}
	if svc.deleted != "alice@corp.example" {
		t.Fatalf("deleted = %q", svc.deleted)
	}
}

func TestPhaseCounts(t *testing.T) {
	svc := newFakeService()
	svc.counts = map[domain.MigrationPhase]int{
		domain.PhaseTraditional: 4,
		domain.PhaseHybrid:      2,
	}

	rec := do(t, svc, http.MethodGet, "/mappings/stats/phases", "", "admin")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var counts map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &counts); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if counts["traditional"] != 4 || counts["hybrid"] != 2 {
		t.Fatalf("counts = %v", counts)
	}
}
