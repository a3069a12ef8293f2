package server

import (
	"errors"
	"net/http"

	"polaris/internal/api"
	"polaris/internal/models"
	"polaris/internal/observability/logging"
)

const (
	versionPath = "/api/version/"
	authPath    = "/api/auth/"
	browsePath  = "/api/browse/"
	flattenPath = "/api/flatten/"
	servePath   = "/api/serve/"
)

// Route binds a handler to a method and a path prefix. The prefix is
// stripped before the handler runs so it sees only the resource path.
type Route struct {
	Method          string
	Path            string
	Handler         http.HandlerFunc
	RequiresSession bool
}

func (rt Route) pattern() string {
	return rt.Method + " " + rt.Path
}

func apiRoutes(h *api.Handler) []Route {
	return []Route{
		{Method: http.MethodGet, Path: versionPath, Handler: h.Version},
		{Method: http.MethodPost, Path: authPath, Handler: h.Auth},
		{Method: http.MethodGet, Path: browsePath, Handler: h.Browse, RequiresSession: true},
		{Method: http.MethodGet, Path: flattenPath, Handler: h.Flatten, RequiresSession: true},
		{Method: http.MethodGet, Path: servePath, Handler: h.Serve, RequiresSession: true},
	}
}

func registerRoutes(mux *http.ServeMux, h *api.Handler, routes []Route) {
	for _, rt := range routes {
		var handler http.Handler = http.StripPrefix(rt.Path, rt.Handler)
		if rt.RequiresSession {
			handler = requireSession(h, handler)
		}
		mux.Handle(rt.pattern(), withRoute(rt.pattern(), handler))
	}
}

// withRoute records the matched pattern for the request log line.
func withRoute(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logging.SetRoute(r.Context(), pattern)
		next.ServeHTTP(w, r)
	})
}

// requireSession lets a request through only when it carries the session
// cookie. The cookie value becomes the request's username; it is not
// re-validated.
func requireSession(h *api.Handler, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, ok := h.SessionUsername(r)
		if !ok {
			api.WriteDomainError(w, models.E(models.KindUnauthorized, "server.requireSession", errors.New("missing session cookie")))
			return
		}
		next.ServeHTTP(w, r.WithContext(api.ContextWithUsername(r.Context(), username)))
	})
}
