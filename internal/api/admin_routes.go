package api

import (
	"net/http"
	"net/http/pprof"
	"net/netip"
	"strings"
)

// adminRouteAccess hides operator routes from clients outside the allowlist.
// Denied requests get a 404 so the routes are not advertised.
type adminRouteAccess struct {
	allowList []netip.Prefix
	clientIP  func(*http.Request) string
}

func newAdminRouteAccess(cidrs []string, clientIP func(*http.Request) string) adminRouteAccess {
	if len(cidrs) == 0 {
		cidrs = loopbackPrefixes
	}
	if clientIP == nil {
		clientIP = remoteHost
	}
	return adminRouteAccess{
		allowList: parsePrefixes(cidrs),
		clientIP:  clientIP,
	}
}

func (a adminRouteAccess) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.allows(r) {
			jsonError(w, "not found", http.StatusNotFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a adminRouteAccess) allows(r *http.Request) bool {
	return prefixesContain(a.allowList, a.clientIP(r))
}

func (s *Server) registerAdminRoutes(enablePprof bool) {
	guard := s.adminRouteAccess.wrap
	s.mux.Handle("GET /api/v1/admin/health", guard(http.HandlerFunc(s.handleAdminHealth)))
	if !enablePprof {
		return
	}
	s.mux.Handle("GET /debug/pprof/", guard(http.HandlerFunc(pprof.Index)))
	s.mux.Handle("GET /debug/pprof/cmdline", guard(http.HandlerFunc(pprof.Cmdline)))
	s.mux.Handle("GET /debug/pprof/profile", guard(http.HandlerFunc(pprof.Profile)))
	s.mux.Handle("GET /debug/pprof/symbol", guard(http.HandlerFunc(pprof.Symbol)))
	s.mux.Handle("POST /debug/pprof/symbol", guard(http.HandlerFunc(pprof.Symbol)))
	s.mux.Handle("GET /debug/pprof/trace", guard(http.HandlerFunc(pprof.Trace)))
	s.mux.Handle("GET /debug/pprof/{profile}", guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		profile := strings.TrimSpace(r.PathValue("profile"))
		if profile == "" {
			jsonError(w, "not found", http.StatusNotFound)
			return
		}
		pprof.Handler(profile).ServeHTTP(w, r)
	})))
}
