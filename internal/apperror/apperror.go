// Package apperror defines the error taxonomy shared by every layer.
//
// ERROR CLASSES:
// Services return *AppError values wrapping one of the sentinel errors below.
// Handlers never inspect error strings. They ask errors.Is(err, ErrXxx) and
// map the class to an HTTP status (see handler/response.go).
//
// Three families of failure exist in MentorFlow:
//  1. validation errors: caught before any backend call, shown inline
//  2. backend errors: network/auth/constraint failures, shown as a generic
//     or "friendly" string (see Friendly)
//  3. cancellations: the caller went away; swallowed silently (see IsCanceled)
package apperror

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrLocked       = errors.New("locked")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports a write that the current state of the data forbids:
// a duplicate key or a status transition the row cannot make.
func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized means "who are you?" rather than "you may not": no session,
// bad credentials, expired token. Handlers map it to 401.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Locked reports that sign-in is temporarily blocked by the attempt tracker.
// RetryAfterSeconds is carried in the message so the UI can show a countdown.
func Locked(retryAfterSeconds int) *AppError {
	return &AppError{
		Err:     ErrLocked,
		Message: fmt.Sprintf("Too many failed attempts. Try again in %d seconds.", retryAfterSeconds),
	}
}

// IsCanceled reports whether err comes from a cancelled or timed-out context.
//
// STRUCTURED CANCELLATION:
// Every data call takes a context.Context. When the caller goes away (the HTTP
// client disconnects, a WebSocket closes, a controller is torn down), the
// context is cancelled and the call returns context.Canceled somewhere down
// the chain. Call boundaries check this ONE function and drop the error
// silently, instead of sniffing error names at every call site.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// friendlyMessages maps backend error text fragments to labels fit for users.
// Matching is case-insensitive on the substring.
var friendlyMessages = []struct {
	fragment string
	label    string
}{
	{"invalid login credentials", "ID or password is incorrect"},
	{"invalid credentials", "ID or password is incorrect"},
	{"email not confirmed", "Please confirm your email before signing in"},
	{"user already registered", "User already existed, please log in"},
	{"duplicate key value violates unique constraint", "User already existed, please log in"},
}

// Friendly returns a user-facing message for err.
//
// Typed AppErrors already carry a safe message, so they pass through. Anything
// else is pattern-matched against friendlyMessages; unknown errors collapse to
// fallback so no internal detail (SQL, file paths) reaches the user.
func Friendly(err error, fallback string) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	for _, fm := range friendlyMessages {
		if strings.Contains(msg, fm.fragment) {
			return fm.label
		}
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return fallback
}
