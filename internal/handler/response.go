package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON / writeError so the wire shape is
// the same everywhere:
//
//	success: the resource itself, or {"message": "..."} for commands
//	failure: {"error": "not_found", "message": "Task not found with id abc"}
//
// Domain errors arrive from the service layer as *apperror.AppError values
// and are mapped to status codes here, and only here.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/mentorflow/internal/apperror"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
}

// MessageResponse is the body of a successful command.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code.
// Headers and status must be written before the body.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeMessage sends {"message": msg} with 200.
func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

// decodeJSON reads a bounded JSON body into dst. A malformed body is a
// validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "invalid JSON body")
	}
	return nil
}

// statusFor maps an error class to an HTTP status and machine-readable type.
//
// ErrLocked maps to 429: the client is being asked to back off, and the
// message carries the countdown.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrLocked):
		return http.StatusTooManyRequests, "locked"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError maps a domain error to the appropriate HTTP status code and
// sends it.
//
// Typed AppErrors keep their message. Anything else goes through
// apperror.Friendly: recognised backend messages are relabelled, unknown
// ones collapse to a generic string so SQL and file paths never leak.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, errorType := statusFor(err)
		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: apperror.Friendly(err, appErr.Message),
		})
		return
	}

	status, errorType := http.StatusInternalServerError, "internal_error"
	msg := apperror.Friendly(err, "An internal error occurred")
	if msg != "An internal error occurred" {
		// A recognised backend message: the caller's input was at fault.
		status, errorType = http.StatusBadRequest, "backend_error"
	}
	writeJSON(w, status, ErrorResponse{Error: errorType, Message: msg})
}

// logFailure logs server-side failures; client errors are not worth a line.
func logFailure(logger *slog.Logger, op string, err error) {
	if status, _ := statusFor(err); status >= http.StatusInternalServerError {
		logger.Error(op+" failed", slog.String("error", err.Error()))
	}
}
