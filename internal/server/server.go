package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"polaris/internal/api"
	"polaris/internal/observability/logging"
	"polaris/internal/observability/metrics"
	"polaris/internal/serverutil"
)

type Config struct {
	Addr            string
	TLS             serverutil.TLSConfig
	RateLimit       RateLimitConfig
	CORS            CORSConfig
	Security        SecurityConfig
	TrustProxy      bool
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
	Metrics         *metrics.Recorder
}

type Server struct {
	httpServer      *http.Server
	handler         http.Handler
	logger          *slog.Logger
	rateLimiter     *rateLimiter
	tls             serverutil.TLSConfig
	shutdownTimeout time.Duration
}

func New(handler *api.Handler, cfg Config) (*Server, error) {
	if handler == nil {
		return nil, errors.New("api handler is required")
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	policy, err := newCORSPolicy(cfg.CORS)
	if err != nil {
		return nil, fmt.Errorf("cors: %w", err)
	}
	rl := newRateLimiter(cfg.RateLimit)
	if rl.store != nil {
		handler.HealthProbes = append(handler.HealthProbes, api.HealthProbe{Component: "redis", Ping: rl.store.Ping})
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", withRoute("GET /healthz", http.HandlerFunc(handler.Health)))
	mux.Handle("GET /metrics", withRoute("GET /metrics", recorder.Handler()))
	registerRoutes(mux, handler, apiRoutes(handler))

	resolveIP := func(r *http.Request) string { return extractClientIP(r, cfg.TrustProxy) }

	handlerChain := http.Handler(mux)
	handlerChain = rateLimitMiddleware(rl, logger, resolveIP, handlerChain)
	handlerChain = corsMiddleware(policy, logger, handlerChain)
	handlerChain = securityHeadersMiddleware(cfg.Security, handlerChain)
	handlerChain = metrics.HTTPMiddleware(recorder, handlerChain)
	handlerChain = logging.RequestLogger(logging.RequestLoggerConfig{
		Logger:   logger,
		ClientIP: resolveIP,
	})(handlerChain)
	handlerChain = requestIDMiddleware(handlerChain)

	// No write timeout: audio responses stream for as long as the client plays.
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handlerChain,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	return &Server{
		httpServer:      httpServer,
		handler:         handlerChain,
		logger:          logger,
		rateLimiter:     rl,
		tls:             serverutil.TLSConfig{CertFile: strings.TrimSpace(cfg.TLS.CertFile), KeyFile: strings.TrimSpace(cfg.TLS.KeyFile)},
		shutdownTimeout: cfg.ShutdownTimeout,
	}, nil
}

// Handler returns the complete middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully and
// releases the rate limiter's backing store.
func (s *Server) Run(ctx context.Context, ready chan<- net.Addr) error {
	return serverutil.Run(ctx, serverutil.Config{
		Server:          s.httpServer,
		TLS:             s.tls,
		ShutdownTimeout: s.shutdownTimeout,
		Logger:          s.logger,
		Ready:           ready,
		Cleanup: []func(context.Context) error{
			func(context.Context) error { return s.rateLimiter.Close() },
		},
	})
}

func rateLimitMiddleware(rl *rateLimiter, logger *slog.Logger, resolveIP func(*http.Request) string, next http.Handler) http.Handler {
	if rl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.AllowRequest() {
			writeMiddlewareError(w, http.StatusTooManyRequests, "global rate limit exceeded")
			return
		}
		if r.Method == http.MethodPost && r.URL.Path == authPath {
			allowed, retryAfter, err := rl.AllowLogin(r.Context(), resolveIP(r))
			if err != nil {
				if logger != nil {
					logging.FromContext(r.Context(), logger).Error("rate limiter failure", "error", err)
				}
				writeMiddlewareError(w, http.StatusServiceUnavailable, "rate limit failure")
				return
			}
			if !allowed {
				if retryAfter > 0 {
					seconds := int((retryAfter + time.Second - 1) / time.Second)
					w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
				}
				writeMiddlewareError(w, http.StatusTooManyRequests, "too many login attempts")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// extractClientIP returns the peer address, or the first forwarded address
// when the server sits behind a trusted proxy.
func extractClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); xrip != "" {
			return xrip
		}
	}
	return clientIP(r.RemoteAddr)
}

func clientIP(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
