// Package rbac holds the role checks handlers apply before administrative
// operations. Roles come from the session token, which carries the roles the
// mapping held when the token was issued.
package rbac

import (
	"context"
	"errors"

	"ssi-migration-bridge/internal/server/middleware"
)

// AdminRole is the role required for administrative mapping operations
// (explicit phase transitions, deletion, enumeration).
const AdminRole = "admin"

// ErrUnauthenticated is returned when no session is present in context.
var ErrUnauthenticated = errors.New("authentication required")

// ErrForbidden is returned when the session lacks the required role.
var ErrForbidden = errors.New("insufficient role")

// RequireAuthenticated ensures the caller carries a valid session. Returns
// the session subject on success.
func RequireAuthenticated(ctx context.Context) (string, error) {
	claims, ok := middleware.Session(ctx)
	if !ok || claims.Subject == "" {
		return "", ErrUnauthenticated
	}
	return claims.Subject, nil
}

// RequireAdmin ensures the caller is authenticated and holds the admin role.
// Returns the session subject on success.
func RequireAdmin(ctx context.Context) (string, error) {
	claims, ok := middleware.Session(ctx)
	if !ok || claims.Subject == "" {
		return "", ErrUnauthenticated
	}
	for _, role := range claims.Roles {
		if role == AdminRole {
			return claims.Subject, nil
		}
	}
	return "", ErrForbidden
}
