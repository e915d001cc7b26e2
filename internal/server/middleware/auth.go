package middleware

import (
	"net/http"
	"strings"

	"ssi-migration-bridge/internal/translator"
)

const bearerPrefix = "bearer "

// PublicRoute decides whether a request may proceed without a session token.
type PublicRoute func(r *http.Request) bool

// Auth validates the Bearer session token and puts its claims in context.
// Public routes pass through without a token; a present-but-invalid token on a
// public route also passes, unauthenticated, mirroring the token-optional
// semantics authentication endpoints need.
func Auth(trans *translator.Translator, public PublicRoute) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			isPublic := public != nil && public(r)

			if token == "" {
				if isPublic {
					next.ServeHTTP(w, r)
					return
				}
				unauthorized(w)
				return
			}

			claims, err := trans.ValidateSession(token)
			if err != nil {
				if isPublic {
					next.ServeHTTP(w, r)
					return
				}
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), claims)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"missing or invalid authorization"}`))
}

// extractBearer returns the Bearer token from the Authorization header, or "".
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
