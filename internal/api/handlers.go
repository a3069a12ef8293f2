package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"polaris/internal/models"
	"polaris/internal/observability/logging"
	"polaris/internal/observability/metrics"
)

// APIVersion is reported by the version endpoint.
var APIVersion = models.Version{Major: 1, Minor: 0}

// DefaultThumbnailSize is the bounding box of images returned by Serve.
const DefaultThumbnailSize = 400

// Collection is the library service behind the handlers.
type Collection interface {
	Authenticate(ctx context.Context, username, password string) bool
	Browse(ctx context.Context, path models.VirtualPath) ([]models.Entry, error)
	Flatten(ctx context.Context, path models.VirtualPath) ([]models.Song, error)
	Locate(ctx context.Context, path models.VirtualPath) (string, error)
}

// Thumbnailer produces a cached thumbnail file for an image and returns its
// real path.
type Thumbnailer interface {
	Thumbnail(ctx context.Context, realPath string, maxDimension int) (string, error)
}

type Handler struct {
	Collection          Collection
	Thumbnails          Thumbnailer
	Decoder             PathDecoder
	SessionCookiePolicy SessionCookiePolicy
	ThumbnailSize       int
	Logger              *slog.Logger
	Metrics             *metrics.Recorder
	HealthProbes        []HealthProbe
}

func NewHandler(collection Collection, thumbnails Thumbnailer) *Handler {
	return &Handler{
		Collection:          collection,
		Thumbnails:          thumbnails,
		SessionCookiePolicy: DefaultSessionCookiePolicy(),
		ThumbnailSize:       DefaultThumbnailSize,
	}
}

func (h *Handler) metrics() *metrics.Recorder {
	if h.Metrics != nil {
		return h.Metrics
	}
	return metrics.Default()
}

func (h *Handler) thumbnailSize() int {
	if h.ThumbnailSize > 0 {
		return h.ThumbnailSize
	}
	return DefaultThumbnailSize
}

func (h *Handler) requestLogger(r *http.Request) *slog.Logger {
	return logging.FromContext(r.Context(), h.Logger)
}

// decodePath decodes the request path and records it for the request log.
func (h *Handler) decodePath(r *http.Request) (models.VirtualPath, error) {
	path, err := h.Decoder.DecodeRequest(r)
	if err == nil {
		logging.SetVirtualPath(r.Context(), string(path))
	}
	return path, err
}

// Version reports the API version.
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIVersion)
}

// Auth checks the submitted credentials and issues the session cookie.
func (h *Handler) Auth(w http.ResponseWriter, r *http.Request) {
	const op = "api.Auth"
	creds, err := parseCredentials(w, r)
	if err != nil {
		h.metrics().ObserveLogin(false)
		h.fail(w, r, models.E(models.KindIncorrectCredentials, op, err))
		return
	}
	if !h.Collection.Authenticate(r.Context(), creds.Username, creds.Password) {
		h.metrics().ObserveLogin(false)
		h.fail(w, r, models.E(models.KindIncorrectCredentials, op, errors.New("credentials rejected")))
		return
	}
	h.metrics().ObserveLogin(true)
	h.setSessionCookie(w, r, creds.Username)
	h.requestLogger(r).Info("user logged in", "username", creds.Username)
	w.WriteHeader(http.StatusOK)
}

// Browse lists the immediate children of the requested directory.
func (h *Handler) Browse(w http.ResponseWriter, r *http.Request) {
	path, err := h.decodePath(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entries, err := h.Collection.Browse(r.Context(), path)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// Flatten lists every song below the requested directory.
func (h *Handler) Flatten(w http.ResponseWriter, r *http.Request) {
	path, err := h.decodePath(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	songs, err := h.Collection.Flatten(r.Context(), path)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if songs == nil {
		songs = []models.Song{}
	}
	writeJSON(w, http.StatusOK, songs)
}
