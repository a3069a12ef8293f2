package logging

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"polaris/internal/observability/metrics"
)

// Request collects what is learnt about a request while it is handled. The
// request ID middleware and the session gate sit on opposite sides of the
// request logger, so the record is shared by pointer through the context
// and read once the response is written.
type Request struct {
	mu          sync.Mutex
	id          string
	username    string
	route       string
	virtualPath string
	resource    string
}

type requestKey struct{}

// WithRequest returns ctx carrying a request record, reusing one that is
// already there.
func WithRequest(ctx context.Context) (context.Context, *Request) {
	if rec := requestFrom(ctx); rec != nil {
		return ctx, rec
	}
	rec := &Request{}
	return context.WithValue(ctx, requestKey{}, rec), rec
}

func requestFrom(ctx context.Context) *Request {
	if ctx == nil {
		return nil
	}
	rec, _ := ctx.Value(requestKey{}).(*Request)
	return rec
}

func update(ctx context.Context, apply func(*Request)) {
	rec := requestFrom(ctx)
	if rec == nil {
		return
	}
	rec.mu.Lock()
	apply(rec)
	rec.mu.Unlock()
}

// ContextWithRequestID records the request ID, attaching a record to ctx
// when there is none yet. Blank IDs are ignored.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	ctx, _ = WithRequest(ctx)
	update(ctx, func(rec *Request) { rec.id = id })
	return ctx
}

// SetUsername records the session owner.
func SetUsername(ctx context.Context, username string) {
	update(ctx, func(rec *Request) { rec.username = username })
}

// SetRoute records the route pattern that matched.
func SetRoute(ctx context.Context, pattern string) {
	update(ctx, func(rec *Request) { rec.route = pattern })
}

// SetVirtualPath records the decoded library path.
func SetVirtualPath(ctx context.Context, path string) {
	update(ctx, func(rec *Request) { rec.virtualPath = path })
}

// SetResource records the kind of file served, such as audio or image.
func SetResource(ctx context.Context, kind string) {
	update(ctx, func(rec *Request) { rec.resource = kind })
}

// RequestIDFromContext returns the recorded request ID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	snap := snapshot(ctx)
	return snap.id, snap.id != ""
}

type requestSnapshot struct {
	id, username, route, virtualPath, resource string
}

func snapshot(ctx context.Context) requestSnapshot {
	rec := requestFrom(ctx)
	if rec == nil {
		return requestSnapshot{}
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return requestSnapshot{
		id:          rec.id,
		username:    rec.username,
		route:       rec.route,
		virtualPath: rec.virtualPath,
		resource:    rec.resource,
	}
}

// FromContext returns logger (or the slog default) tagged with the request
// ID and session owner recorded on ctx so far.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	snap := snapshot(ctx)
	if snap.id != "" {
		logger = logger.With("request_id", snap.id)
	}
	if snap.username != "" {
		logger = logger.With("username", snap.username)
	}
	return logger
}

type RequestLoggerConfig struct {
	Logger *slog.Logger
	// ClientIP resolves the address logged as client_ip. Nil logs the
	// connection's RemoteAddr.
	ClientIP func(*http.Request) string
}

// RequestLogger logs one line per request once the response is complete,
// including the route, virtual path and resource kind recorded by the
// handlers.
func RequestLogger(cfg RequestLoggerConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, _ := WithRequest(r.Context())
			r = r.WithContext(ctx)
			recorder := metrics.NewResponseRecorder(w)
			start := time.Now()
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)

			clientIP := r.RemoteAddr
			if cfg.ClientIP != nil {
				clientIP = cfg.ClientIP(r)
			}
			snap := snapshot(ctx)
			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.Status(),
				"bytes", recorder.BytesWritten(),
				"duration_ms", duration.Milliseconds(),
				"client_ip", clientIP,
			}
			if snap.route != "" {
				attrs = append(attrs, "route", snap.route)
			}
			if snap.virtualPath != "" {
				attrs = append(attrs, "virtual_path", snap.virtualPath)
			}
			if snap.resource != "" {
				attrs = append(attrs, "resource", snap.resource)
			}

			level := slog.LevelInfo
			if recorder.Status() >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			FromContext(ctx, cfg.Logger).Log(ctx, level, "request completed", attrs...)
		})
	}
}
