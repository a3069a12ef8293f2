package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRequestUsesNormalizedRoute(t *testing.T) {
	recorder := New()
	recorder.ObserveRequest("get", "/api/serve/MusicLibrary%5CArtist%5CSong.flac", http.StatusOK, 20*time.Millisecond)
	recorder.ObserveRequest("GET", "/api/serve/Other.flac", http.StatusOK, 10*time.Millisecond)

	got := testutil.ToFloat64(recorder.requestsTotal.WithLabelValues("GET", "/api/serve", "200"))
	if got != 2 {
		t.Fatalf("expected 2 requests on /api/serve, got %v", got)
	}
}

func TestNormalizeRoute(t *testing.T) {
	cases := map[string]string{
		"":                        "/",
		"/":                       "/",
		"/healthz":                "/healthz",
		"/api/version/":           "/api/version",
		"/api/browse/a%5Cb%5Cc":   "/api/browse",
		"api/flatten/deep/nested": "/api/flatten",
	}
	for in, want := range cases {
		if got := normalizeRoute(in); got != want {
			t.Fatalf("normalizeRoute(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestObserveRebuild(t *testing.T) {
	recorder := New()
	recorder.ObserveRebuild(10, 120, 2*time.Second, nil)
	recorder.ObserveRebuild(0, 0, 0, errors.New("disk"))

	if got := testutil.ToFloat64(recorder.indexedSongs); got != 120 {
		t.Fatalf("expected 120 songs, got %v", got)
	}
	if got := testutil.ToFloat64(recorder.indexedDirectories); got != 10 {
		t.Fatalf("expected 10 directories, got %v", got)
	}
	if got := testutil.ToFloat64(recorder.rebuildsTotal.WithLabelValues("failure")); got != 1 {
		t.Fatalf("expected one failed rebuild, got %v", got)
	}
	if got := testutil.ToFloat64(recorder.rebuildDuration); got != 2 {
		t.Fatalf("failed rebuild should not reset duration, got %v", got)
	}
}

func TestObserveServedAndThumbnails(t *testing.T) {
	recorder := New()
	recorder.ObserveServed("Audio")
	recorder.ObserveServed("")
	recorder.ObserveThumbnail("hit")
	recorder.ObserveLogin(true)
	recorder.ObserveLogin(false)
	recorder.ObserveLogin(false)

	if got := testutil.ToFloat64(recorder.servedTotal.WithLabelValues("audio")); got != 1 {
		t.Fatalf("expected audio counter 1, got %v", got)
	}
	if got := testutil.ToFloat64(recorder.servedTotal.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("expected unknown counter 1, got %v", got)
	}
	if got := testutil.ToFloat64(recorder.thumbnailsTotal.WithLabelValues("hit")); got != 1 {
		t.Fatalf("expected thumbnail hit 1, got %v", got)
	}
	if got := testutil.ToFloat64(recorder.loginsTotal.WithLabelValues("failure")); got != 2 {
		t.Fatalf("expected two failed logins, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	recorder := New()
	recorder.ObserveServed("image")

	rr := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(body), `polaris_served_total{kind="image"} 1`) {
		t.Fatalf("expected served counter in output, got %q", body)
	}
}

func TestSetDefault(t *testing.T) {
	original := Default()
	t.Cleanup(func() { SetDefault(original) })

	replacement := New()
	SetDefault(replacement)
	SetDefault(nil)
	if Default() != replacement {
		t.Fatal("expected replacement recorder to be the default")
	}
	ObserveRequest("POST", "/api/auth/", http.StatusOK, time.Millisecond)
	if got := testutil.ToFloat64(replacement.requestsTotal.WithLabelValues("POST", "/api/auth", "200")); got != 1 {
		t.Fatalf("expected helper to use default recorder, got %v", got)
	}
}
