package common

import (
	"errors"
	"net/http"
)

// Error codes covering the failure kinds the reconciliation core can surface.
const (
	CodeGatewayNotConfigured = "GATEWAY_NOT_CONFIGURED"
	CodeGatewayError         = "GATEWAY_ERROR"
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeBadRequest           = "BAD_REQUEST"
	CodeNotFound             = "NOT_FOUND"
	CodeInternal             = "INTERNAL"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// BadRequest constructs a request-level error for malformed or missing
// webhook/checkout parameters.
func BadRequest(message string) *AppError {
	return NewAppError(CodeBadRequest, message, http.StatusBadRequest, nil)
}

// GatewayError wraps a transport or provider failure, carrying the provider's
// message when one is available.
func GatewayError(message string, err error) *AppError {
	return NewAppError(CodeGatewayError, message, http.StatusBadGateway, err)
}

// AsAppError extracts an AppError, falling back to an internal error wrapper.
func AsAppError(err error) *AppError {
	var target *AppError
	if errors.As(err, &target) {
		return target
	}
	return NewAppError(CodeInternal, "internal error", http.StatusInternalServerError, err)
}
