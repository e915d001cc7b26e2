// Package httpx holds the small HTTP helpers shared by all handler packages:
// JSON responses, request decoding, and the service-error to status-code map.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	bridgeservice "ssi-migration-bridge/internal/bridge/service"
	mappingservice "ssi-migration-bridge/internal/mapping/service"
	"ssi-migration-bridge/internal/platform/rbac"
	"ssi-migration-bridge/internal/ssi/credential"
	"ssi-migration-bridge/internal/ssi/did"
	"ssi-migration-bridge/internal/ssi/wallet"
	"ssi-migration-bridge/internal/translator"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error string `json:"error"`
}

// Status maps a service error to its HTTP status code. Unknown errors are
// internal server errors.
func Status(err error) int {
	switch {
	case errors.Is(err, mappingservice.ErrNotFound),
		errors.Is(err, did.ErrNotFound),
		errors.Is(err, wallet.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, mappingservice.ErrConflict),
		errors.Is(err, bridgeservice.ErrEmailAlreadyRegistered):
		return http.StatusConflict
	case errors.Is(err, mappingservice.ErrInvalidInput),
		errors.Is(err, translator.ErrInvalidInput),
		errors.Is(err, translator.ErrInvalidCredentialShape),
		errors.Is(err, credential.ErrUnknownSchema),
		errors.Is(err, bridgeservice.ErrUnsupportedTranslation):
		return http.StatusBadRequest
	case errors.Is(err, bridgeservice.ErrPreconditionFailed):
		return http.StatusPreconditionFailed
	case errors.Is(err, bridgeservice.ErrAuthenticationFailed),
		errors.Is(err, translator.ErrInvalidToken),
		errors.Is(err, rbac.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, rbac.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, bridgeservice.ErrDependencyTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON writes v as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError writes the error as a JSON envelope using the status map.
// Internal errors get a generic message; the real error is logged.
func WriteError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := Status(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
		if logger != nil {
			logger.Error("request failed", zap.Error(err))
		}
	}
	WriteJSON(w, status, ErrorBody{Error: msg})
}

// Decode reads the request body as JSON into v. A failure is a client error;
// the caller should respond 400.
func Decode(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}
