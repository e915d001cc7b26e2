package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	bridgeservice "ssi-migration-bridge/internal/bridge/service"
	mappingservice "ssi-migration-bridge/internal/mapping/service"
	"ssi-migration-bridge/internal/platform/rbac"
	"ssi-migration-bridge/internal/ssi/did"
	"ssi-migration-bridge/internal/translator"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"mapping not found", mappingservice.ErrNotFound, http.StatusNotFound},
		{"did not found", did.ErrNotFound, http.StatusNotFound},
		{"conflict", mappingservice.ErrConflict, http.StatusConflict},
		{"duplicate email", bridgeservice.ErrEmailAlreadyRegistered, http.StatusConflict},
		{"invalid input", mappingservice.ErrInvalidInput, http.StatusBadRequest},
		{"translator input", translator.ErrInvalidInput, http.StatusBadRequest},
		{"unsupported translation", bridgeservice.ErrUnsupportedTranslation, http.StatusBadRequest},
		{"precondition", bridgeservice.ErrPreconditionFailed, http.StatusPreconditionFailed},
		{"auth failed", bridgeservice.ErrAuthenticationFailed, http.StatusUnauthorized},
		{"unauthenticated", rbac.ErrUnauthenticated, http.StatusUnauthorized},
		{"forbidden", rbac.ErrForbidden, http.StatusForbidden},
		{"dependency timeout", bridgeservice.ErrDependencyTimeout, http.StatusGatewayTimeout},
		{"wrapped", fmt.Errorf("lookup: %w", mappingservice.ErrNotFound), http.StatusNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Status(tt.err); got != tt.want {
				t.Fatalf("Status(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, nil, errors.New("pq: connection refused"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.Error != "internal error" {
		t.Fatalf("body.Error = %q, want generic message", body.Error)
	}
}

func TestWriteErrorKeepsClientDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, nil, fmt.Errorf("%w: email is required", mappingservice.ErrInvalidInput))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.Error == "internal error" || body.Error == "" {
		t.Fatalf("body.Error = %q, want the validation message", body.Error)
	}
}
