// Package server implements the admin HTTP API for keygate.
//
// Security:
//   - API key authentication on every /v1 request (constant-time comparison)
//   - Per-key rate limiting via token bucket
//   - All decisions logged with organization and request IDs
//   - TLS expected via reverse proxy (not handled here)
package server

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jkaninda/okapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/vaultum/keygate/internal/observability"
	"github.com/vaultum/keygate/internal/orgauth"
	"github.com/vaultum/keygate/internal/ratelimit"
	"github.com/vaultum/keygate/internal/storage"
)

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error string `json:"error"`
}

// Config configures the HTTP API server.
type Config struct {
	ListenAddr string // e.g., ":8080"
	EnableDocs bool
	APIKeys    []string // Admin API keys. Keys from config or env.

	// Observability
	MetricsRegistry *prometheus.Registry   // Custom Prometheus registry for /metrics.
	MetricsPath     string                 // Path for metrics endpoint. Default: "/metrics".
	Metrics         *observability.Metrics // Metrics for HTTP middleware.
	Tracer          trace.Tracer           // OTel tracer for HTTP middleware.
}

// Gateway is the admin HTTP API server.
type Gateway struct {
	config  Config
	command *orgauth.Command
	store   storage.Store
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	server  *http.Server

	// Extra handlers mounted on the HTTP mux (e.g., the device WebSocket endpoint).
	extraRoutes []extraRoute

	okapi *okapi.Okapi
	group *okapi.Group
}

// extraRoute stores an additional handler to be mounted on the HTTP mux.
type extraRoute struct {
	pattern string
	handler http.Handler
}

// NewGateway creates the admin API server.
func NewGateway(cfg Config, command *orgauth.Command, store storage.Store, rl *ratelimit.Limiter, logger *slog.Logger) *Gateway {
	return &Gateway{
		config:  cfg,
		command: command,
		store:   store,
		limiter: rl,
		logger:  logger,
		okapi:   okapi.New(),
	}
}

// WithHandler mounts an additional handler on the HTTP mux at the given pattern.
// Used for the device WebSocket endpoint alongside the API routes.
func (g *Gateway) WithHandler(pattern string, handler http.Handler) *Gateway {
	g.extraRoutes = append(g.extraRoutes, extraRoute{pattern: pattern, handler: handler})
	return g
}

// WithOpenAPIDocs enables the generated OpenAPI documentation endpoint.
func (g *Gateway) WithOpenAPIDocs() *Gateway {
	g.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   "Keygate",
			Version: "v0.0.1",
		},
	)
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	// Authenticated /v1 group, instrumented when observability is configured.
	middlewares := []okapi.Middleware{}
	if g.config.Metrics != nil || g.config.Tracer != nil {
		middlewares = append(middlewares, observability.MetricsMiddleware(g.config.Metrics, g.config.Tracer))
	}
	middlewares = append(middlewares, g.authenticate)
	g.group = g.okapi.Group("/v1", middlewares...)

	g.group.Post("/organizations/{orgID}/auth-requests", g.handleCreate,
		okapi.DocSummary("Record a device login request pending admin approval"),
		okapi.DocTags("AuthRequests"),
		okapi.DocPathParam("orgID", "string", "Organization ID (UUID)"),
		okapi.DocRequestBody(CreateAuthRequest{}),
		okapi.DocResponse(http.StatusCreated, AuthRequestResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)
	g.group.Get("/organizations/{orgID}/auth-requests", g.handleListPending,
		okapi.DocSummary("List the organization's pending login requests"),
		okapi.DocTags("AuthRequests"),
		okapi.DocPathParam("orgID", "string", "Organization ID (UUID)"),
		okapi.DocResponse([]AuthRequestResponse{}),
	)
	g.group.Get("/organizations/{orgID}/auth-requests/{id}", g.handleGet,
		okapi.DocSummary("Get a login request by ID"),
		okapi.DocTags("AuthRequests"),
		okapi.DocPathParam("orgID", "string", "Organization ID (UUID)"),
		okapi.DocPathParam("id", "string", "Auth request ID (UUID)"),
		okapi.DocResponse(AuthRequestResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Put("/organizations/{orgID}/auth-requests/{id}", g.handleUpdate,
		okapi.DocSummary("Approve or deny a single login request"),
		okapi.DocTags("AuthRequests"),
		okapi.DocPathParam("orgID", "string", "Organization ID (UUID)"),
		okapi.DocPathParam("id", "string", "Auth request ID (UUID)"),
		okapi.DocRequestBody(UpdateAuthRequest{}),
		okapi.DocResponse(map[string]string{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusConflict, ErrorBody{}),
	)
	g.group.Put("/organizations/{orgID}/auth-requests", g.handleUpdateMany,
		okapi.DocSummary("Approve or deny a batch of login requests"),
		okapi.DocTags("AuthRequests"),
		okapi.DocPathParam("orgID", "string", "Organization ID (UUID)"),
		okapi.DocRequestBody(UpdateManyAuthRequests{}),
		okapi.DocResponse(map[string]string{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
	)

	// Extra handlers (e.g., the device WebSocket endpoint).
	for _, er := range g.extraRoutes {
		g.okapi.HandleStd("GET", er.pattern, er.handler.ServeHTTP)
	}

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.WithOpenAPIDocs()
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http api server starting", slog.String("addr", g.config.ListenAddr))

	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(_ context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http api server stopping")
	return g.okapi.Shutdown(g.server)
}

// --- Authentication ---

// authenticate validates the bearer API key with a constant-time comparison.
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.AbortUnauthorized("missing or invalid Authorization header")
		}
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")

		matched := ""
		for _, key := range g.config.APIKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
				matched = key
			}
		}
		if matched == "" {
			return c.AbortUnauthorized("invalid API key")
		}
		c.Set("apiKey", matched)
		return next(c)
	}
}
