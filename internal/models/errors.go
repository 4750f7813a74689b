package models

import "net/http"

// ErrorCode identifies a user-visible failure class.
type ErrorCode string

const (
	CodeServiceUnavailable ErrorCode = "service_unavailable"
	CodeTimeout            ErrorCode = "timeout"
	CodeRateLimited        ErrorCode = "rate_limited"
	CodeGenerationFailed   ErrorCode = "generation_failed"
	CodeNoDomainsFound     ErrorCode = "no_domains_found"
	CodeInvalidInput       ErrorCode = "invalid_input"
	CodeDomainNotFound     ErrorCode = "domain_not_found"
	CodeAuthRequired       ErrorCode = "auth_required"
	CodeInternalError      ErrorCode = "internal_error"
)

// errorMessages are the user-facing default messages per code.
var errorMessages = map[ErrorCode]string{
	CodeServiceUnavailable: "Our domain generation service is temporarily unavailable. Please try again in a few moments.",
	CodeTimeout:            "The request took too long to complete. Please try again.",
	CodeRateLimited:        "You've made too many requests. Please wait a moment before trying again.",
	CodeGenerationFailed:   "We couldn't generate domain suggestions right now. Please try again.",
	CodeNoDomainsFound:     "No available domains were found for your description. Try a different description or get creative!",
	CodeInvalidInput:       "The provided input is invalid. Please check your request and try again.",
	CodeDomainNotFound:     "The specified domain was not found in our database.",
	CodeAuthRequired:       "You need to be logged in to perform this action.",
	CodeInternalError:      "Something went wrong on our end. Please try again later.",
}

// retryable marks which codes make sense to retry from the client side.
var retryable = map[ErrorCode]bool{
	CodeServiceUnavailable: true,
	CodeTimeout:            true,
	CodeRateLimited:        true,
	CodeGenerationFailed:   true,
	CodeNoDomainsFound:     true,
}

var httpStatus = map[ErrorCode]int{
	CodeServiceUnavailable: http.StatusServiceUnavailable,
	CodeTimeout:            http.StatusGatewayTimeout,
	CodeRateLimited:        http.StatusTooManyRequests,
	CodeGenerationFailed:   http.StatusInternalServerError,
	CodeNoDomainsFound:     http.StatusNotFound,
	CodeInvalidInput:       http.StatusBadRequest,
	CodeDomainNotFound:     http.StatusNotFound,
	CodeAuthRequired:       http.StatusUnauthorized,
	CodeInternalError:      http.StatusInternalServerError,
}

// APIError carries an error code, user message, and retry hint through the stack.
// It doubles as the JSON payload of HTTP error responses and SSE "error" events.
type APIError struct {
	Code         ErrorCode `json:"code"`
	Message      string    `json:"message"`
	Details      string    `json:"details,omitempty"`
	RetryAllowed bool      `json:"retry_allowed"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return string(e.Code) + ": " + e.Details
	}
	return string(e.Code) + ": " + e.Message
}

// HTTPStatus returns the HTTP status code matching the error code.
func (e *APIError) HTTPStatus() int {
	if s, ok := httpStatus[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// NewAPIError builds an APIError with the default user message for code.
// details is internal diagnostic context, safe to expose but not required reading.
func NewAPIError(code ErrorCode, details string) *APIError {
	msg, ok := errorMessages[code]
	if !ok {
		msg = "An unexpected error occurred."
	}
	return &APIError{
		Code:         code,
		Message:      msg,
		Details:      details,
		RetryAllowed: retryable[code],
	}
}
