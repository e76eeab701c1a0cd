package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

// NewUpstreamThrottled reports that the music API kept rate limiting after all retries.
func NewUpstreamThrottled(retryAfter string, err error) error {
	details := map[string]any{}
	if retryAfter != "" {
		details["retry_after"] = retryAfter
	}
	return &DomainError{
		Code:       "UPSTREAM_THROTTLED",
		Message:    "upstream rate limit exceeded, try again later",
		HTTPStatus: http.StatusTooManyRequests,
		Details:    details,
		Err:        err,
	}
}

// NewUpstreamError reports a failed call to the music API.
func NewUpstreamError(status int, err error) error {
	return &DomainError{
		Code:       "UPSTREAM_ERROR",
		Message:    "upstream request failed",
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"upstream_status": status},
		Err:        err,
	}
}

func NewServiceUnavailable(message string, err error) error {
	return &DomainError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    message,
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}
