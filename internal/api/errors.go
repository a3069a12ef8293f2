package api

import (
	"errors"
	"log/slog"
	"net/http"

	"polaris/internal/models"
)

// kindStatus maps every domain error kind to its transport status.
var kindStatus = map[models.Kind]int{
	models.KindIO:                        http.StatusNotFound,
	models.KindCannotClearExistingIndex:  http.StatusInternalServerError,
	models.KindPathDecoding:              http.StatusInternalServerError,
	models.KindConfigDirectory:           http.StatusInternalServerError,
	models.KindCacheDirectory:            http.StatusInternalServerError,
	models.KindPathNotInVFS:              http.StatusNotFound,
	models.KindCannotServeDirectory:      http.StatusBadRequest,
	models.KindUnsupportedFileType:       http.StatusBadRequest,
	models.KindAlbumArtSearch:            http.StatusInternalServerError,
	models.KindImageProcessing:           http.StatusInternalServerError,
	models.KindUnsupportedMetadataFormat: http.StatusInternalServerError,
	models.KindMetadataDecoding:          http.StatusInternalServerError,
	models.KindUnauthorized:              http.StatusUnauthorized,
	models.KindIncorrectCredentials:      http.StatusBadRequest,
}

const internalErrorMessage = "internal server error"

// StatusForKind returns the HTTP status for a kind. Unknown kinds fail
// closed to 500.
func StatusForKind(kind models.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Translate converts an error into a status and a client-safe message.
// Request path decoding failures are client errors; any other unclassified
// error is a 500 whose details stay in the logs.
func Translate(err error) (int, string) {
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return http.StatusBadRequest, models.KindPathDecoding.String()
	}
	kind, ok := models.KindOf(err)
	if !ok {
		return http.StatusInternalServerError, internalErrorMessage
	}
	status := StatusForKind(kind)
	if _, known := kindStatus[kind]; !known {
		return status, internalErrorMessage
	}
	return status, kind.String()
}

// WriteDomainError translates err and writes it as a JSON error body.
func WriteDomainError(w http.ResponseWriter, err error) {
	status, message := Translate(err)
	writeJSON(w, status, errorResponse{Error: message})
}

type errorResponse struct {
	Error string `json:"error"`
}

// fail logs err against the request and writes the translated response.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message := Translate(err)
	logger := h.requestLogger(r)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(r.Context(), level, "request failed", "status", status, "error", err)
	writeJSON(w, status, errorResponse{Error: message})
}

// failWithStatus writes status regardless of the error's kind, keeping the
// kind description as the message when there is one.
func (h *Handler) failWithStatus(w http.ResponseWriter, r *http.Request, status int, fallback models.Kind, err error) {
	message := fallback.String()
	if kind, ok := models.KindOf(err); ok {
		if _, known := kindStatus[kind]; known {
			message = kind.String()
		}
	}
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.requestLogger(r).Log(r.Context(), level, "request failed", "status", status, "error", err)
	writeJSON(w, status, errorResponse{Error: message})
}
