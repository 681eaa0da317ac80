// Package errmap translates domain errors into transport responses.
package errmap

import (
	"errors"
	"net/http"

	"github.com/aelexs/clinic-otp/internal/domain"
)

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e HTTPError) Error() string {
	return e.Message
}

// httpMapping defines a domain error to HTTP status, code and user message.
type httpMapping struct {
	err        error
	statusCode int
	code       string
	message    string
}

// httpMappings maps domain errors to responses. Order matters: first match
// wins (via errors.Is). Messages are fixed strings so wrapped adapter
// details never reach clients.
var httpMappings = []httpMapping{
	// Verification outcomes: 400 with distinct messages.
	{domain.ErrOTPNotFound, http.StatusBadRequest, "OTP_NOT_FOUND", "Please request a new OTP"},
	{domain.ErrOTPExpired, http.StatusBadRequest, "OTP_EXPIRED", "OTP has expired"},
	{domain.ErrOTPMismatch, http.StatusBadRequest, "INVALID_OTP", "Invalid OTP"},

	// Issuance
	{domain.ErrAlreadyPending, http.StatusBadRequest, "OTP_PENDING", "An OTP was already sent. Please wait for it to expire before requesting a new one"},
	{domain.ErrDelivery, http.StatusInternalServerError, "DELIVERY_FAILED", "Failed to send OTP"},

	// Validation errors: 400
	{domain.ErrInvalidTarget, http.StatusBadRequest, "INVALID_TARGET", "Invalid verification target or method"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "INVALID_ARGUMENT", "Invalid request"},

	// Resource errors
	{domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "Not found"},

	// Rate limiting: 429
	{domain.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later"},

	// Availability
	{domain.ErrUnavailable, http.StatusServiceUnavailable, "UNAVAILABLE", "Service temporarily unavailable"},
}

// ToHTTPError converts a domain error to an HTTP error.
func ToHTTPError(err error) HTTPError {
	if err == nil {
		return HTTPError{StatusCode: http.StatusOK}
	}
	for _, m := range httpMappings {
		if errors.Is(err, m.err) {
			return HTTPError{StatusCode: m.statusCode, Code: m.code, Message: m.message}
		}
	}
	// Never expose internal error details to clients
	return HTTPError{StatusCode: http.StatusInternalServerError, Code: "INTERNAL", Message: "internal error"}
}
