package service

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes carried in the response envelope.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeLocked       = "ACCOUNT_LOCKED"
	CodeInternal     = "INTERNAL_ERROR"
)

// AppError is the error type every service operation returns to the
// transport layer.  Message is safe to show to clients; Err is the
// internal cause and only surfaces in development.
type AppError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status the error maps to.
func (e *AppError) StatusCode() int { return e.Status }

func newAppError(status int, code, msg string) *AppError {
	return &AppError{Status: status, Code: code, Message: msg}
}

func ErrValidation(msg string) *AppError {
	return newAppError(http.StatusBadRequest, CodeValidation, msg)
}

func ErrBadRequest(msg string) *AppError {
	return newAppError(http.StatusBadRequest, CodeBadRequest, msg)
}

func ErrUnauthorized(msg string) *AppError {
	return newAppError(http.StatusUnauthorized, CodeUnauthorized, msg)
}

func ErrForbidden(msg string) *AppError {
	return newAppError(http.StatusForbidden, CodeForbidden, msg)
}

func ErrNotFound(msg string) *AppError {
	return newAppError(http.StatusNotFound, CodeNotFound, msg)
}

func ErrConflict(msg string) *AppError {
	return newAppError(http.StatusConflict, CodeConflict, msg)
}

func ErrLocked(msg string) *AppError {
	return newAppError(http.StatusLocked, CodeLocked, msg)
}

// ErrInternal hides cause behind a generic message.
func ErrInternal(cause error) *AppError {
	e := newAppError(http.StatusInternalServerError, CodeInternal, "internal server error")
	e.Err = cause
	return e
}

// AsAppError extracts an *AppError from err, wrapping anything else as
// internal.
func AsAppError(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return ErrInternal(err)
}

// Messages shared between operations so responses stay uniform.
const (
	msgInvalidCredentials = "invalid email or password"
	msgInvalidToken       = "invalid or expired token"
	msgInvalidRefresh     = "invalid refresh token"
	msgPasswordTooLong    = "password must be at most 72 bytes"
	msgForgotPassword     = "if an account exists for that email, a reset link has been sent"
)
