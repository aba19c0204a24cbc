package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"cashbook/internal/auth"
	"cashbook/internal/core"
	"cashbook/internal/editor"
	"cashbook/internal/export"
	"cashbook/internal/ledger"
	"cashbook/internal/view"
	"cashbook/internal/voice"
)

// ErrorResponse is the body of every non-2xx JSON answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// errorStatus maps domain errors to a status and the message shown to the
// user. Anything unknown is a 500 with a generic message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidType),
		errors.Is(err, core.ErrInvalidCategory),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, view.ErrUnknownView),
		errors.Is(err, voice.ErrUnknownField):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrNoSession),
		errors.Is(err, auth.ErrUserNotFound):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, auth.ErrUserExists):
		return http.StatusConflict, err.Error()
	case errors.Is(err, editor.ErrNotOwner):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, editor.ErrNotConfirmed):
		return http.StatusConflict, err.Error()
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, export.ErrNothingToExport):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, voice.ErrUnsupported):
		return http.StatusNotImplemented, err.Error()
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, "something went wrong, please try again"
}
