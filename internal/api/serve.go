package api

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"polaris/internal/media"
	"polaris/internal/models"
	"polaris/internal/observability/logging"
)

// Serve streams the requested file: audio files as-is, images as a
// thumbnail no larger than ThumbnailSize.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	const op = "api.Serve"
	path, err := h.decodePath(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	real, err := h.Collection.Locate(r.Context(), path)
	if err != nil {
		h.failWithStatus(w, r, http.StatusNotFound, models.KindPathNotInVFS, err)
		return
	}

	info, err := os.Stat(real)
	if err != nil {
		h.failWithStatus(w, r, statusForFSError(err), models.KindIO, models.E(models.KindIO, op, err))
		return
	}
	if info.IsDir() {
		logging.SetResource(r.Context(), media.KindDirectory.String())
		h.metrics().ObserveServed(media.KindDirectory.String())
		h.fail(w, r, models.E(models.KindCannotServeDirectory, op, fmt.Errorf("%s is a directory", path)))
		return
	}

	kind := media.Classify(info.Name())
	logging.SetResource(r.Context(), kind.String())
	h.metrics().ObserveServed(kind.String())
	switch kind {
	case media.KindAudio:
		w.Header().Set("Content-Type", media.AudioContentType(info.Name()))
		h.serveFile(w, r, real)
	case media.KindImage:
		thumbnail, err := h.Thumbnails.Thumbnail(r.Context(), real, h.thumbnailSize())
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.serveFile(w, r, thumbnail)
	default:
		h.fail(w, r, models.E(models.KindUnsupportedFileType, op, fmt.Errorf("extension %q is neither audio nor image", filepath.Ext(info.Name()))))
	}
}

// serveFile streams a regular file with range and conditional request
// support.
func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, real string) {
	const op = "api.serveFile"
	f, err := os.Open(real)
	if err != nil {
		h.failWithStatus(w, r, statusForFSError(err), models.KindIO, models.E(models.KindIO, op, err))
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		h.failWithStatus(w, r, http.StatusInternalServerError, models.KindIO, models.E(models.KindIO, op, err))
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func statusForFSError(err error) int {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, fs.ErrPermission):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
