package common

import (
	"errors"
	"net/http"
)

// API error codes carried in the "code" field of error bodies.
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeNotFound            = "NOT_FOUND"
	CodeProductNotFound     = "PRODUCT_NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeIdempotencyInFlight = "IDEMPOTENCY_IN_FLIGHT"
	CodePayloadTooLarge     = "PAYLOAD_TOO_LARGE"
	CodeRateLimited         = "RATE_LIMITED"
	CodeUnavailable         = "UNAVAILABLE"
	CodeInternal            = "INTERNAL"
)

var codeStatus = map[string]int{
	CodeBadRequest:          http.StatusBadRequest,
	CodeNotFound:            http.StatusNotFound,
	CodeProductNotFound:     http.StatusUnprocessableEntity,
	CodeConflict:            http.StatusConflict,
	CodeIdempotencyInFlight: http.StatusConflict,
	CodePayloadTooLarge:     http.StatusRequestEntityTooLarge,
	CodeRateLimited:         http.StatusTooManyRequests,
	CodeUnavailable:         http.StatusServiceUnavailable,
	CodeInternal:            http.StatusInternalServerError,
}

// StatusFor returns the HTTP status paired with code, 500 for unknown codes.
func StatusFor(code string) int {
	if s, ok := codeStatus[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// AppError is an error the HTTP layer can render: a code, a client safe
// message and the cause, which is never shown to the client.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Code + ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Status reports the HTTP status, derived from the code when unset.
func (e *AppError) Status() int {
	if e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return StatusFor(e.Code)
}

// NewAppError constructs an AppError with an explicit status.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// Fail constructs an AppError whose status follows from code.
func Fail(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: StatusFor(code), Err: err}
}

// AsAppError finds the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var target *AppError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// IsAppError reports whether err already carries an AppError.
func IsAppError(err error) bool {
	_, ok := AsAppError(err)
	return ok
}
