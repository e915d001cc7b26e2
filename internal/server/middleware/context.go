package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"ssi-migration-bridge/internal/translator"
)

type contextKey struct{ name string }

var (
	sessionKey   = contextKey{"session"}
	requestIDKey = contextKey{"request_id"}
	clientIPKey  = contextKey{"client_ip"}
)

// WithSession returns a context carrying the validated session claims.
// Handlers read them via Session.
func WithSession(ctx context.Context, claims *translator.SessionClaims) context.Context {
	return context.WithValue(ctx, sessionKey, claims)
}

// Session returns the session claims from context and true if set.
func Session(ctx context.Context) (*translator.SessionClaims, bool) {
	c, ok := ctx.Value(sessionKey).(*translator.SessionClaims)
	return c, ok && c != nil
}

// Subject returns the authenticated subject from context, or "".
func Subject(ctx context.Context) string {
	if c, ok := Session(ctx); ok {
		return c.Subject
	}
	return ""
}

// WithRequestID returns a context carrying the request correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns the request correlation id from context, or "".
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithClientIP returns a context carrying the resolved client IP, so layers
// without the request (the audit logger) can still record it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFromContext returns the client IP placed in context by the
// request-id middleware, or "unknown".
func ClientIPFromContext(ctx context.Context) string {
	if v, _ := ctx.Value(clientIPKey).(string); v != "" {
		return v
	}
	return "unknown"
}

// ClientIP returns the client IP from X-Forwarded-For, X-Real-IP, or the
// connection remote address, or "unknown".
func ClientIP(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); v != "" {
		if i := strings.Index(v, ","); i > 0 {
			v = strings.TrimSpace(v[:i])
		}
		if v != "" {
			return v
		}
	}
	if v := strings.TrimSpace(r.Header.Get("X-Real-IP")); v != "" {
		return v
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
