package api

import (
	"net/http"
	"net/url"
	"strings"
)

// DefaultSessionCookieName is the cookie carrying the logged-in username.
const DefaultSessionCookieName = "username"

type SessionCookieSecureMode int

const (
	SessionCookieSecureAuto SessionCookieSecureMode = iota + 1
	SessionCookieSecureAlways
	SessionCookieSecureNever
)

// SessionCookiePolicy controls the attributes of the session cookie. The
// zero value issues a plain `username=<name>; Path=/` cookie, adding Secure
// only for HTTPS requests.
type SessionCookiePolicy struct {
	Name       string
	SameSite   http.SameSite
	SecureMode SessionCookieSecureMode
	HTTPOnly   bool
}

func DefaultSessionCookiePolicy() SessionCookiePolicy {
	return SessionCookiePolicy{
		Name:       DefaultSessionCookieName,
		SecureMode: SessionCookieSecureAuto,
	}
}

func (p SessionCookiePolicy) secure(r *http.Request) bool {
	switch p.SecureMode {
	case SessionCookieSecureAlways:
		return true
	case SessionCookieSecureNever:
		return false
	default:
		return isSecureRequest(r)
	}
}

func (p SessionCookiePolicy) name() string {
	if p.Name == "" {
		return DefaultSessionCookieName
	}
	return p.Name
}

// setSessionCookie issues a session cookie with no expiry so it lasts for the
// browser session. The username is query-escaped; names made of cookie-safe
// characters are written unchanged.
func setSessionCookie(w http.ResponseWriter, r *http.Request, username string, policy SessionCookiePolicy) {
	http.SetCookie(w, &http.Cookie{
		Name:     policy.name(),
		Value:    url.QueryEscape(username),
		Path:     "/",
		HttpOnly: policy.HTTPOnly,
		Secure:   policy.secure(r),
		SameSite: policy.SameSite,
	})
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, r *http.Request, username string) {
	setSessionCookie(w, r, username, h.SessionCookiePolicy)
}

// sessionUsername returns the username carried by the session cookie. Only
// presence is checked; the value is not verified.
func sessionUsername(r *http.Request, policy SessionCookiePolicy) (string, bool) {
	cookie, err := r.Cookie(policy.name())
	if err != nil {
		return "", false
	}
	if username, err := url.QueryUnescape(cookie.Value); err == nil {
		return username, true
	}
	return cookie.Value, true
}

// SessionUsername reports whether the request carries the session cookie and
// returns its value.
func (h *Handler) SessionUsername(r *http.Request) (string, bool) {
	return sessionUsername(r, h.SessionCookiePolicy)
}

func isSecureRequest(r *http.Request) bool {
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		for _, p := range strings.Split(proto, ",") {
			if strings.EqualFold(strings.TrimSpace(p), "https") {
				return true
			}
		}
	}
	if r.URL != nil && strings.EqualFold(r.URL.Scheme, "https") {
		return true
	}
	return false
}
