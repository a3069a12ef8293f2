package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"polaris/internal/api"
	"polaris/internal/models"
	"polaris/internal/observability/metrics"
)

type stubCollection struct {
	mu    sync.Mutex
	calls int
	real  map[models.VirtualPath]string
}

func (s *stubCollection) touch() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *stubCollection) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubCollection) Authenticate(_ context.Context, username, password string) bool {
	s.touch()
	return username == "alice" && password == "wonderland"
}

func (s *stubCollection) Browse(context.Context, models.VirtualPath) ([]models.Entry, error) {
	s.touch()
	return []models.Entry{models.DirectoryEntry(models.Directory{Path: "MusicLibrary", IsMount: true})}, nil
}

func (s *stubCollection) Flatten(context.Context, models.VirtualPath) ([]models.Song, error) {
	s.touch()
	return nil, nil
}

func (s *stubCollection) Locate(_ context.Context, path models.VirtualPath) (string, error) {
	s.touch()
	if real, ok := s.real[path]; ok {
		return real, nil
	}
	return "", models.E(models.KindPathNotInVFS, "stub.Locate", nil)
}

type stubThumbnailer struct{}

func (stubThumbnailer) Thumbnail(_ context.Context, realPath string, _ int) (string, error) {
	return realPath, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(t *testing.T) (*api.Handler, *stubCollection) {
	t.Helper()
	dir := t.TempDir()
	song := filepath.Join(dir, "Song.flac")
	if err := os.WriteFile(song, []byte("flac bytes"), 0o644); err != nil {
		t.Fatalf("write song: %v", err)
	}
	collection := &stubCollection{real: map[models.VirtualPath]string{`MusicLibrary\Artist\Song.flac`: song}}
	handler := api.NewHandler(collection, stubThumbnailer{})
	handler.Logger = quietLogger()
	handler.Metrics = metrics.New()
	return handler, collection
}

func newTestServer(t *testing.T, cfg Config) (*Server, *stubCollection) {
	t.Helper()
	handler, collection := newTestHandler(t)
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = handler.Metrics
	}
	srv, err := New(handler, cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return srv, collection
}

func TestNewReturnsErrorWhenHandlerNil(t *testing.T) {
	if _, err := New(nil, Config{}); err == nil {
		t.Fatal("expected error when handler is nil")
	}
}

func TestNewRejectsInvalidCORSOrigin(t *testing.T) {
	handler, _ := newTestHandler(t)
	if _, err := New(handler, Config{CORS: CORSConfig{AllowedOrigins: []string{"not-an-origin"}}}); err == nil {
		t.Fatal("expected error for invalid origin")
	}
}

func TestSessionGateRejectsProtectedRoutesWithoutCookie(t *testing.T) {
	srv, collection := newTestServer(t, Config{})

	for _, target := range []string{
		"/api/browse/",
		"/api/browse/MusicLibrary",
		"/api/flatten/MusicLibrary",
		"/api/serve/MusicLibrary%5CArtist%5CSong.flac",
	} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", target, rec.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: decode: %v", target, err)
		}
		if body["error"] != models.KindUnauthorized.String() {
			t.Fatalf("%s: unexpected error %q", target, body["error"])
		}
	}
	if collection.Calls() != 0 {
		t.Fatalf("expected no collection calls, got %d", collection.Calls())
	}
}

func TestSessionGateAcceptsAnyCookieValue(t *testing.T) {
	srv, collection := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/serve/MusicLibrary%5CArtist%5CSong.flac", nil)
	req.AddCookie(&http.Cookie{Name: "username", Value: "whoever"})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "flac bytes" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
	if collection.Calls() != 1 {
		t.Fatalf("expected one collection call, got %d", collection.Calls())
	}
}

func TestSessionGateStoresUsernameOnContext(t *testing.T) {
	handler, _ := newTestHandler(t)
	var seen string
	gate := requireSession(handler, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = api.UsernameFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/browse/", nil)
	req.AddCookie(&http.Cookie{Name: "username", Value: "alice"})
	gate.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "alice" {
		t.Fatalf("expected username on context, got %q", seen)
	}
}

func TestOpenRoutesDoNotNeedSession(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/version/", nil))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"major":1,"minor":0}` {
		t.Fatalf("unexpected version response %d %q", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/", strings.NewReader("username=alice&password=wonderland"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected login success, got %d", rec.Code)
	}
	if got := rec.Header().Get("Set-Cookie"); got != "username=alice; Path=/" {
		t.Fatalf("unexpected cookie %q", got)
	}

	for _, target := range []string{"/healthz", "/metrics"} {
		rec = httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", target, rec.Code)
		}
	}
}

func TestLoginThenBrowse(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Post(ts.URL+"/api/auth/", "application/json", strings.NewReader(`{"username":"alice","password":"wonderland"}`))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	resp.Body.Close()
	cookies := resp.Cookies()
	if resp.StatusCode != http.StatusOK || len(cookies) != 1 {
		t.Fatalf("unexpected login response %d %v", resp.StatusCode, cookies)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/browse/", nil)
	req.AddCookie(cookies[0])
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("browse: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var entries []models.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].Path() != "MusicLibrary" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestWrongMethodIsRejected(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestResponsesCarryRequestID(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/version/", nil))
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected generated request id header")
	}
}

func TestExtractClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	req.Header.Set("X-Real-IP", "198.51.100.7")

	if got := extractClientIP(req, false); got != "192.0.2.10" {
		t.Fatalf("expected peer address when proxies are untrusted, got %q", got)
	}
	if got := extractClientIP(req, true); got != "203.0.113.5" {
		t.Fatalf("expected first forwarded address, got %q", got)
	}
	req.Header.Del("X-Forwarded-For")
	if got := extractClientIP(req, true); got != "198.51.100.7" {
		t.Fatalf("expected real ip header, got %q", got)
	}
	if got := clientIP("not-a-hostport"); got != "not-a-hostport" {
		t.Fatalf("expected raw remote addr, got %q", got)
	}
}
