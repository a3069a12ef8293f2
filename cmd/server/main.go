package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"polaris/internal/api"
	"polaris/internal/auth"
	"polaris/internal/collection"
	"polaris/internal/config"
	"polaris/internal/index"
	"polaris/internal/observability/logging"
	"polaris/internal/observability/metrics"
	"polaris/internal/server"
	"polaris/internal/serverutil"
	"polaris/internal/thumbnails"
	"polaris/internal/vfs"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	configPath := flag.String("config", "", "path to the YAML library configuration")
	dataDir := flag.String("data-dir", "", "directory holding the index database and thumbnail cache")
	separator := flag.String("separator", "", "virtual path separator, overriding the config file")
	reindexEvery := flag.Duration("reindex-every", 0, "interval between index rebuilds, overriding the config file")
	thumbnailSize := flag.Int("thumbnail-size", 0, "bounding box in pixels of served thumbnails")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	userStoreDriver := flag.String("user-store", "", "user store driver (config or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string for the user store")
	postgresTimeout := flag.Duration("postgres-timeout", 0, "timeout for user store queries")
	cookieName := flag.String("cookie-name", "", "session cookie name")
	cookieSecure := flag.String("cookie-secure", "", "session cookie Secure attribute (auto, always or never)")
	cookieSameSite := flag.String("cookie-samesite", "", "session cookie SameSite attribute (lax, strict or none)")
	cookieHTTPOnly := flag.Bool("cookie-http-only", false, "mark the session cookie HttpOnly")
	corsOrigins := flag.String("cors-origins", "", "comma separated origins allowed to call the API with credentials")
	trustProxy := flag.Bool("trust-proxy", false, "trust X-Forwarded-For and X-Real-IP for client addresses")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	loginLimit := flag.Int("rate-login-limit", 0, "maximum login attempts per window for a single IP")
	loginWindow := flag.Duration("rate-login-window", 0, "window for counting login attempts")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed login throttling")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for distributed login throttling")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis operations")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("POLARIS_LOG_LEVEL"), "info"),
		Format: firstNonEmpty(*logFormat, os.Getenv("POLARIS_LOG_FORMAT")),
	})
	recorder := metrics.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfgPath := firstNonEmpty(*configPath, os.Getenv("POLARIS_CONFIG"), "polaris.yaml")
	libraryCfg, err := loadLibraryConfig(cfgPath, firstNonEmpty(*separator, os.Getenv("POLARIS_PATH_SEPARATOR")))
	if err != nil {
		logger.Error("failed to load configuration", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	library, err := vfs.New(libraryCfg.Separator, libraryCfg.VFSMounts())
	if err != nil {
		logger.Error("invalid mount points", "error", err)
		os.Exit(1)
	}

	dataPath := firstNonEmpty(*dataDir, os.Getenv("POLARIS_DATA_DIR"), "data")
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		logger.Error("failed to create data directory", "path", dataPath, "error", err)
		os.Exit(1)
	}
	indexPath := filepath.Join(dataPath, "index.db")
	idx, err := index.Open(ctx, indexPath, library, index.Options{
		AlbumArtPattern: libraryCfg.AlbumArtPattern,
		Logger:          logging.WithComponent(logger, "index"),
	})
	if err != nil {
		logger.Error("failed to open index", "path", indexPath, "error", err)
		os.Exit(1)
	}

	usersCfg, err := resolveUserStoreConfig(
		*userStoreDriver,
		os.Getenv("POLARIS_USER_STORE"),
		firstNonEmpty(*postgresDSN, os.Getenv("POLARIS_POSTGRES_DSN"), os.Getenv("DATABASE_URL")),
		resolveDuration(*postgresTimeout, "POLARIS_POSTGRES_TIMEOUT", 0),
	)
	if err != nil {
		logger.Error("failed to resolve user store", "error", err)
		os.Exit(1)
	}
	users, closeUsers, err := openUserStore(ctx, usersCfg, libraryCfg)
	if err != nil {
		logger.Error("failed to open user store", "driver", usersCfg.Driver, "error", err)
		os.Exit(1)
	}
	authenticator := auth.NewAuthenticator(users)

	coll, err := collection.New(collection.Config{
		VFS:           library,
		Catalogue:     idx,
		Authenticator: authenticator,
		Logger:        logging.WithComponent(logger, "collection"),
		OnRebuild: func(stats index.Stats, err error) {
			recorder.ObserveRebuild(stats.Directories, stats.Songs, stats.Duration, err)
		},
	})
	if err != nil {
		logger.Error("failed to initialise collection", "error", err)
		os.Exit(1)
	}

	thumbnailDir := filepath.Join(dataPath, "thumbnails")
	thumbs, err := thumbnails.New(thumbnailDir, thumbnails.Options{
		Logger:   logging.WithComponent(logger, "thumbnails"),
		Observer: func(outcome thumbnails.Outcome) { recorder.ObserveThumbnail(string(outcome)) },
	})
	if err != nil {
		logger.Error("failed to prepare thumbnail cache", "path", thumbnailDir, "error", err)
		os.Exit(1)
	}

	cookiePolicy, err := resolveSessionCookiePolicy(
		firstNonEmpty(*cookieName, os.Getenv("POLARIS_COOKIE_NAME")),
		firstNonEmpty(*cookieSecure, os.Getenv("POLARIS_COOKIE_SECURE")),
		firstNonEmpty(*cookieSameSite, os.Getenv("POLARIS_COOKIE_SAMESITE")),
		resolveBool(*cookieHTTPOnly, "POLARIS_COOKIE_HTTP_ONLY"),
	)
	if err != nil {
		logger.Error("invalid session cookie settings", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(coll, thumbs)
	handler.Decoder = api.PathDecoder{Separator: libraryCfg.Separator}
	handler.SessionCookiePolicy = cookiePolicy
	if size := resolveInt(*thumbnailSize, "POLARIS_THUMBNAIL_SIZE"); size > 0 {
		handler.ThumbnailSize = size
	}
	handler.Logger = logging.WithComponent(logger, "api")
	handler.Metrics = recorder
	handler.HealthProbes = []api.HealthProbe{
		{Component: "index", Ping: coll.Ping},
		{Component: "users", Ping: authenticator.Ping},
	}

	interval := resolveDuration(*reindexEvery, "POLARIS_REINDEX_EVERY", libraryCfg.ReindexEvery())
	stopReindex := startReindexWorker(ctx, logging.WithComponent(logger, "reindex"), coll, interval)
	defer stopReindex()

	rateCfg := server.RateLimitConfig{
		GlobalRPS:     resolveFloat(*globalRPS, "POLARIS_RATE_GLOBAL_RPS"),
		GlobalBurst:   resolveInt(*globalBurst, "POLARIS_RATE_GLOBAL_BURST"),
		LoginLimit:    resolveInt(*loginLimit, "POLARIS_RATE_LOGIN_LIMIT"),
		LoginWindow:   resolveDuration(*loginWindow, "POLARIS_RATE_LOGIN_WINDOW", time.Minute),
		RedisAddr:     firstNonEmpty(*redisAddr, os.Getenv("POLARIS_RATE_REDIS_ADDR")),
		RedisPassword: firstNonEmpty(*redisPassword, os.Getenv("POLARIS_RATE_REDIS_PASSWORD")),
		RedisTimeout:  resolveDuration(*redisTimeout, "POLARIS_RATE_REDIS_TIMEOUT", 2*time.Second),
	}
	listenAddr := firstNonEmpty(*addr, os.Getenv("POLARIS_ADDR"), defaultListenAddr)
	tlsCfg := serverutil.TLSConfig{
		CertFile: firstNonEmpty(*tlsCert, os.Getenv("POLARIS_TLS_CERT")),
		KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("POLARIS_TLS_KEY")),
	}

	srv, err := server.New(handler, server.Config{
		Addr:       listenAddr,
		TLS:        tlsCfg,
		RateLimit:  rateCfg,
		CORS:       server.CORSConfig{AllowedOrigins: splitAndTrim(firstNonEmpty(*corsOrigins, os.Getenv("POLARIS_CORS_ORIGINS")))},
		TrustProxy: resolveBool(*trustProxy, "POLARIS_TRUST_PROXY"),
		Logger:     logger,
		Metrics:    recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	summary := newStartupSummary(startupSummaryInput{
		Addr:          listenAddr,
		ConfigPath:    cfgPath,
		Library:       libraryCfg,
		IndexPath:     indexPath,
		ThumbnailDir:  thumbnailDir,
		ThumbnailSize: handler.ThumbnailSize,
		UserStore:     usersCfg,
		RateLimit:     rateCfg,
		ReindexEvery:  interval,
		CookiePolicy:  cookiePolicy,
		TLSConfigured: tlsCfg.CertFile != "" && tlsCfg.KeyFile != "",
	})
	logger.Info("polaris starting", summary.LogArgs()...)

	runErr := srv.Run(ctx, nil)
	if runErr != nil && !errors.Is(runErr, http.ErrServerClosed) {
		logger.Error("server error", "error", runErr)
	}

	stopReindex()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverutil.DefaultShutdownTimeout)
	defer cancel()
	if err := idx.Close(); err != nil {
		logger.Warn("failed to close index", "error", err)
	}
	if err := closeUsers(shutdownCtx); err != nil {
		logger.Warn("failed to close user store", "error", err)
	}

	logger.Info("server stopped")
	if runErr != nil {
		os.Exit(1)
	}
}

const defaultListenAddr = ":5050"

// loadLibraryConfig reads the YAML config and applies the separator
// override, revalidating afterwards since mount names depend on it.
func loadLibraryConfig(path, separator string) (*config.Config, error) {
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	if separator != "" && separator != cfg.Separator {
		cfg.Separator = separator
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

type userStoreConfig struct {
	Driver  string
	DSN     string
	Timeout time.Duration
}

func resolveUserStoreConfig(flagDriver, envDriver, dsn string, timeout time.Duration) (userStoreConfig, error) {
	driver := strings.ToLower(firstNonEmpty(flagDriver, envDriver))
	dsn = strings.TrimSpace(dsn)
	if driver == "" {
		driver = "config"
	}
	switch driver {
	case "config":
		return userStoreConfig{Driver: "config"}, nil
	case "postgres":
		if dsn == "" {
			return userStoreConfig{}, fmt.Errorf("postgres user store selected without DSN")
		}
		return userStoreConfig{Driver: "postgres", DSN: dsn, Timeout: timeout}, nil
	default:
		return userStoreConfig{}, fmt.Errorf("unsupported user store driver %q", driver)
	}
}

func openUserStore(ctx context.Context, cfg userStoreConfig, library *config.Config) (auth.UserStore, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	switch cfg.Driver {
	case "postgres":
		var opts []auth.PostgresOption
		if cfg.Timeout > 0 {
			opts = append(opts, auth.WithTimeout(cfg.Timeout))
		}
		store, err := auth.NewPostgresUserStore(ctx, cfg.DSN, opts...)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	default:
		store, err := auth.NewMemoryUserStore(library.Credentials())
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	}
}

func resolveSessionCookiePolicy(name, secure, sameSite string, httpOnly bool) (api.SessionCookiePolicy, error) {
	policy := api.DefaultSessionCookiePolicy()
	if name != "" {
		policy.Name = name
	}
	switch strings.ToLower(secure) {
	case "", "auto":
		policy.SecureMode = api.SessionCookieSecureAuto
	case "always", "true":
		policy.SecureMode = api.SessionCookieSecureAlways
	case "never", "false":
		policy.SecureMode = api.SessionCookieSecureNever
	default:
		return api.SessionCookiePolicy{}, fmt.Errorf("unsupported cookie secure mode %q", secure)
	}
	switch strings.ToLower(sameSite) {
	case "":
	case "lax":
		policy.SameSite = http.SameSiteLaxMode
	case "strict":
		policy.SameSite = http.SameSiteStrictMode
	case "none":
		policy.SameSite = http.SameSiteNoneMode
	default:
		return api.SessionCookiePolicy{}, fmt.Errorf("unsupported cookie SameSite mode %q", sameSite)
	}
	policy.HTTPOnly = httpOnly
	return policy, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}
