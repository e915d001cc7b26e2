// Package server assembles the HTTP router: middleware chain, CORS, and the
// per-feature handler registrations.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"ssi-migration-bridge/internal/audit"
	bridgehandler "ssi-migration-bridge/internal/bridge/handler"
	healthhandler "ssi-migration-bridge/internal/health/handler"
	mappinghandler "ssi-migration-bridge/internal/mapping/handler"
	"ssi-migration-bridge/internal/server/middleware"
	ssihandler "ssi-migration-bridge/internal/ssi/handler"
	"ssi-migration-bridge/internal/translator"
)

// apiPrefix is the versioned base path for all feature routes.
const apiPrefix = "/api/v1"

// publicPaths are the routes reachable without a session token.
var publicPaths = map[string]bool{
	"/healthz":                   true,
	"/readyz":                    true,
	apiPrefix + "/auth/register": true,
	apiPrefix + "/auth/login":    true,
	apiPrefix + "/auth/saml":     true,
	apiPrefix + "/auth/oidc":     true,
	apiPrefix + "/auth/vc":       true,
}

// auditSkipPaths are routes the audit middleware ignores.
var auditSkipPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
}

// Deps holds everything the router needs.
type Deps struct {
	Bridge     *bridgehandler.Handler
	Mappings   *mappinghandler.Handler
	SSI        *ssihandler.Handler
	Health     *healthhandler.Handler
	Translator *translator.Translator
	Audit      audit.AuditLogger
	Tracer     trace.TracerProvider
	Logger     *zap.Logger

	// CORSOrigins is the allowed-origin list; empty allows all origins
	// (development default).
	CORSOrigins []string
}

// New builds the HTTP handler: request-id, access log, tracing, auth, and
// audit middleware around the feature routers, wrapped in CORS.
func New(deps Deps) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(deps.Logger))
	if deps.Tracer != nil {
		r.Use(middleware.Trace(deps.Tracer))
	}
	r.Use(middleware.Auth(deps.Translator, func(req *http.Request) bool {
		return publicPaths[req.URL.Path]
	}))
	r.Use(middleware.Audit(deps.Audit, auditSkipPaths))

	deps.Health.Register(r)

	api := r.PathPrefix(apiPrefix).Subrouter()
	deps.Bridge.Register(api)
	deps.Mappings.Register(api)
	deps.SSI.Register(api)

	c := cors.New(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}
