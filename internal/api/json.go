package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/panes/internal/apperr"
	"github.com/starford/panes/internal/assets"
	"github.com/starford/panes/internal/pane"
	"github.com/starford/panes/internal/resolve"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusFor maps domain errors to HTTP status codes; 0 means unexpected.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound),
		errors.Is(err, pane.ErrUnknownSession),
		errors.Is(err, pane.ErrUnknownView):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrAlreadyExists),
		errors.Is(err, apperr.ErrConflict),
		errors.Is(err, pane.ErrNested):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrInvalid),
		errors.Is(err, pane.ErrInvalidIndex),
		errors.Is(err, pane.ErrUnknownMessage),
		errors.Is(err, assets.ErrBadName),
		errors.Is(err, assets.ErrUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, assets.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, pane.ErrUntrustedOrigin),
		errors.Is(err, pane.ErrOriginMismatch):
		return http.StatusForbidden
	case errors.Is(err, resolve.ErrUnresolved),
		errors.Is(err, resolve.ErrInvalidURL):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pane.ErrClosed):
		return http.StatusGone
	}
	return 0
}

// writeError writes the response for err. Unexpected errors are logged and
// reported as 500 without detail.
func writeError(w http.ResponseWriter, op string, err error, attrs ...any) {
	status := statusFor(err)
	if status == 0 {
		slog.Error(op+" failed", append(attrs, slog.String("error", err.Error()))...)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if status == http.StatusNotFound {
		writeJSON(w, status, errorBody("not found"))
		return
	}
	writeJSON(w, status, errorBody(err.Error()))
}
