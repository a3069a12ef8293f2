package main

import (
	"net/url"
	"strings"
	"time"

	"polaris/internal/api"
	"polaris/internal/config"
	"polaris/internal/server"
)

const redactedSecret = "*****"

type startupSummaryInput struct {
	Addr          string
	ConfigPath    string
	Library       *config.Config
	IndexPath     string
	ThumbnailDir  string
	ThumbnailSize int
	UserStore     userStoreConfig
	RateLimit     server.RateLimitConfig
	ReindexEvery  time.Duration
	CookiePolicy  api.SessionCookiePolicy
	TLSConfigured bool
}

// startupSummary is logged once before the listener opens. Secrets are
// redacted when the summary is built.
type startupSummary struct {
	addr          string
	tls           bool
	library       map[string]any
	index         map[string]any
	thumbnails    map[string]any
	userStore     map[string]any
	loginThrottle map[string]any
	session       map[string]any
}

func newStartupSummary(in startupSummaryInput) startupSummary {
	summary := startupSummary{
		addr: in.Addr,
		tls:  in.TLSConfigured,
		library: map[string]any{
			"config": in.ConfigPath,
		},
		index: map[string]any{
			"path":          in.IndexPath,
			"reindex_every": in.ReindexEvery.String(),
		},
		thumbnails: map[string]any{
			"dir":  in.ThumbnailDir,
			"size": in.ThumbnailSize,
		},
	}

	if in.Library != nil {
		mounts := make([]string, 0, len(in.Library.MountDirs))
		for _, mount := range in.Library.VFSMounts() {
			mounts = append(mounts, mount.Name)
		}
		summary.library["separator"] = in.Library.Separator
		summary.library["mounts"] = mounts
		summary.library["album_art_pattern"] = in.Library.AlbumArtPattern
	}

	summary.userStore = map[string]any{"driver": in.UserStore.Driver}
	if in.UserStore.Driver == "config" && in.Library != nil {
		summary.userStore["users"] = len(in.Library.Users)
	}
	if in.UserStore.DSN != "" {
		summary.userStore["dsn"] = redactDSN(in.UserStore.DSN)
	}
	if in.UserStore.Timeout > 0 {
		summary.userStore["timeout"] = in.UserStore.Timeout.String()
	}

	summary.loginThrottle = map[string]any{"driver": "memory"}
	if addr := strings.TrimSpace(in.RateLimit.RedisAddr); addr != "" {
		summary.loginThrottle["driver"] = "redis"
		summary.loginThrottle["addr"] = addr
	}
	if in.RateLimit.LoginLimit > 0 {
		summary.loginThrottle["limit"] = in.RateLimit.LoginLimit
		summary.loginThrottle["window"] = in.RateLimit.LoginWindow.String()
	} else {
		summary.loginThrottle["limit"] = "disabled"
	}

	name := in.CookiePolicy.Name
	if name == "" {
		name = api.DefaultSessionCookieName
	}
	summary.session = map[string]any{
		"cookie":    name,
		"secure":    secureModeName(in.CookiePolicy.SecureMode),
		"http_only": in.CookiePolicy.HTTPOnly,
	}
	return summary
}

// LogArgs flattens the summary into slog key/value pairs.
func (s startupSummary) LogArgs() []any {
	return []any{
		"addr", s.addr,
		"tls", s.tls,
		"library", s.library,
		"index", s.index,
		"thumbnails", s.thumbnails,
		"user_store", s.userStore,
		"login_throttle", s.loginThrottle,
		"session", s.session,
	}
}

func secureModeName(mode api.SessionCookieSecureMode) string {
	switch mode {
	case api.SessionCookieSecureAlways:
		return "always"
	case api.SessionCookieSecureNever:
		return "never"
	default:
		return "auto"
	}
}

// redactDSN masks the password of URL style DSNs. Anything that does not
// parse as a URL is hidden entirely.
func redactDSN(dsn string) string {
	parsed, err := url.Parse(dsn)
	if err != nil || parsed.Scheme == "" {
		return redactedSecret
	}
	if parsed.User != nil {
		if _, hasPassword := parsed.User.Password(); hasPassword {
			parsed.User = url.UserPassword(parsed.User.Username(), redactedSecret)
		}
	}
	return parsed.String()
}
