package common

import (
	"errors"
	"net/http"
)

// ErrNotFound marks a missing record.
var ErrNotFound = errors.New("not found")

// AppError is an error the API can show to clients: a stable code, a
// message and the HTTP status to answer with. Err keeps the cause for logs.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	default:
		return e.Message
	}
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError wraps err with a client-facing code and status.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// IsAppError reports whether err carries an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

func NotFound(code, message string) *AppError {
	return NewAppError(code, message, http.StatusNotFound, ErrNotFound)
}

func BadRequest(code, message string) *AppError {
	return NewAppError(code, message, http.StatusBadRequest, nil)
}

func Conflict(code, message string) *AppError {
	return NewAppError(code, message, http.StatusConflict, nil)
}

// WriteError answers with err's AppError shape, or a generic 500 that hides
// the cause.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	body := ErrorBody{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details}
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if body.Code == "" {
		body.Code = "INTERNAL"
	}
	if body.Message == "" {
		body.Message = http.StatusText(status)
	}
	JSON(w, status, errorEnvelope{Error: body})
}
