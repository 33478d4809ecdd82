package api

import (
	"log/slog"
	"net/http"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/odvcencio/memorybank/internal/auth"
	"github.com/odvcencio/memorybank/internal/service"
)

type ServerOptions struct {
	Logger *slog.Logger
	// Auth enables bearer-token authentication on project routes when set.
	Auth              *auth.Service
	Metrics           prometheus.Registerer
	Gatherer          prometheus.Gatherer
	TrustedProxies    []string
	AdminAllowedCIDRs []string
	ProjectRootHeader string
	EnablePprof       bool
}

type Server struct {
	svc              *service.MemoryService
	authSvc          *auth.Service
	logger           *slog.Logger
	mux              *http.ServeMux
	handler          http.Handler
	metrics          *httpMetrics
	gatherer         prometheus.Gatherer
	ipResolver       clientIPResolver
	adminRouteAccess adminRouteAccess
	projectRoot      projectRootOptions
	entities         map[string]entityRoutes
}

type middlewareFunc func(http.Handler) http.Handler

func NewServer(svc *service.MemoryService, opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	metrics := getDefaultHTTPMetrics()
	if opts.Metrics != nil {
		metrics = newHTTPMetrics(opts.Metrics)
	}
	ipResolver := newClientIPResolver(opts.TrustedProxies)
	s := &Server{
		svc:              svc,
		authSvc:          opts.Auth,
		logger:           opts.Logger,
		mux:              http.NewServeMux(),
		metrics:          metrics,
		gatherer:         opts.Gatherer,
		ipResolver:       ipResolver,
		adminRouteAccess: newAdminRouteAccess(opts.AdminAllowedCIDRs, ipResolver.clientIPFromRequest),
		projectRoot:      newProjectRootOptions(opts.ProjectRootHeader),
		entities:         entityRouteTable(svc.Entities()),
	}
	s.routes()
	s.registerAdminRoutes(opts.EnablePprof)

	routes := muxRouteLabeler(s.mux)
	mws := []middlewareFunc{
		requestTracingMiddleware(routes),
		func(next http.Handler) http.Handler { return requestMetricsMiddleware(s.metrics, routes, next) },
		requestLoggingMiddleware(s.logger, s.ipResolver),
		gzipMiddleware,
		requestBodyLimitMiddleware,
	}
	if s.authSvc != nil {
		mws = append(mws, auth.Middleware(s.authSvc))
	}
	mws = append(mws, projectRootMiddleware(s.projectRoot))
	s.handler = chainMiddleware(s.mux, mws...)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// chainMiddleware wraps handler so that the first middleware runs outermost.
func chainMiddleware(handler http.Handler, mws ...middlewareFunc) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		handler = mws[i](handler)
	}
	return handler
}

func gzipMiddleware(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", metricsHandler(s.gatherer))

	// Memory bank
	s.mux.Handle("POST /api/v1/memory/init", s.project(s.handleInitMemoryBank))
	s.mux.Handle("GET /api/v1/repos", s.project(s.handleListRepositories))
	s.mux.Handle("GET /api/v1/repos/{repo}/branches/{branch}", s.project(s.handleGetRepository))
	s.mux.Handle("DELETE /api/v1/repos/{repo}/branches/{branch}", s.project(s.handleDeleteRepository))
	s.mux.Handle("GET /api/v1/repos/{repo}/branches/{branch}/stats", s.project(s.handleStats))

	// Entities
	s.mux.Handle("PUT /api/v1/repos/{repo}/branches/{branch}/{kind}", s.project(s.handleUpsertEntity))
	s.mux.Handle("GET /api/v1/repos/{repo}/branches/{branch}/{kind}", s.project(s.handleListEntities))
	s.mux.Handle("GET /api/v1/repos/{repo}/branches/{branch}/{kind}/{id}", s.project(s.handleGetEntity))
	s.mux.Handle("DELETE /api/v1/repos/{repo}/branches/{branch}/{kind}/{id}", s.project(s.handleDeleteEntity))
	s.mux.Handle("POST /api/v1/repos/{repo}/branches/{branch}/tags/{id}/items", s.project(s.handleTagItem))

	// Graph queries
	s.mux.Handle("GET /api/v1/repos/{repo}/branches/{branch}/components/{id}/dependencies", s.project(s.handleComponentDependencies))
	s.mux.Handle("GET /api/v1/repos/{repo}/branches/{branch}/components/{id}/dependents", s.project(s.handleComponentDependents))
	s.mux.Handle("GET /api/v1/repos/{repo}/branches/{branch}/components/{id}/governing", s.project(s.handleGoverningItems))
	s.mux.Handle("GET /api/v1/repos/{repo}/branches/{branch}/components/{id}/history", s.project(s.handleContextHistory))
	s.mux.Handle("GET /api/v1/repos/{repo}/branches/{branch}/components/{id}/related", s.project(s.handleRelatedItems))
	s.mux.Handle("GET /api/v1/repos/{repo}/branches/{branch}/tags/{id}/items", s.project(s.handleItemsByTag))

	// Analysis
	s.mux.Handle("POST /api/v1/repos/{repo}/branches/{branch}/analysis", s.project(s.handleAnalysisBatch))
	s.mux.Handle("POST /api/v1/repos/{repo}/branches/{branch}/analysis/{algorithm}", s.project(s.handleAnalysis))
}

type projectHandlerFunc func(w http.ResponseWriter, r *http.Request, root string)

// project guards routes that operate on a project memory bank: the caller
// must be authenticated when auth is enabled and must name a project root.
func (s *Server) project(fn projectHandlerFunc) http.Handler {
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		root, ok := projectRootFromContext(r.Context())
		if !ok {
			jsonError(w, s.projectRoot.headerName+" header is required", http.StatusBadRequest)
			return
		}
		annotateProjectSpan(r, root)
		fn(w, r, root)
	})
	if s.authSvc != nil {
		h = auth.RequireAuth(h)
	}
	return h
}
