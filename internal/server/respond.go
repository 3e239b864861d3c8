package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"soniclibrary/internal/app"
	"soniclibrary/pkg/domain"
)

// envelope is the uniform success payload.
type envelope struct {
	Data    any    `json:"data"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// pagedEnvelope wraps list payloads with page metadata.
type pagedEnvelope struct {
	Data       any               `json:"data"`
	Pagination domain.Pagination `json:"pagination"`
	Message    string            `json:"message"`
	Status     string            `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Data: data, Message: "Success", Status: "ok"})
}

func writeMessage(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, envelope{Data: data, Message: message, Status: "ok"})
}

func writePage(w http.ResponseWriter, data any, page domain.Pagination) {
	writeJSON(w, http.StatusOK, pagedEnvelope{
		Data:       data,
		Pagination: page,
		Message:    "Success",
		Status:     "ok",
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "status": "error"})
}

// writeAppError maps the application error taxonomy onto HTTP statuses.
// Unclassified errors are logged and reported as a generic 500.
func writeAppError(w http.ResponseWriter, err error) {
	var appErr *app.Error
	if errors.As(err, &appErr) {
		writeError(w, statusForKind(appErr.Kind), appErr.Message)
		return
	}
	slog.Error("internal error", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func statusForKind(kind app.Kind) int {
	switch kind {
	case app.KindValidation:
		return http.StatusBadRequest
	case app.KindUnauthorized:
		return http.StatusUnauthorized
	case app.KindForbidden:
		return http.StatusForbidden
	case app.KindNotFound:
		return http.StatusNotFound
	case app.KindConflict:
		return http.StatusConflict
	case app.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
