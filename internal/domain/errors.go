package domain

import "errors"

// Sentinel errors for domain error conditions.
// Use errors.Is() for matching - never compare error strings.
var (
	// Resource errors
	ErrNotFound = errors.New("resource not found")

	// Validation errors
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidTarget = errors.New("invalid OTP target")

	// Issuance errors
	ErrAlreadyPending = errors.New("an OTP is already pending for this target")
	ErrDelivery       = errors.New("OTP delivery failed")

	// Verification errors. Each maps to a distinct caller-facing message.
	ErrOTPNotFound = errors.New("no pending OTP for target")
	ErrOTPExpired  = errors.New("OTP has expired")
	ErrOTPMismatch = errors.New("invalid OTP")

	// Operational errors
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrUnavailable = errors.New("service temporarily unavailable")

	// Configuration errors
	ErrConfigRequired = errors.New("required configuration key missing")
)

// clientErrors enumerates all domain errors that represent client-side issues.
var clientErrors = []error{
	ErrInvalidInput,
	ErrInvalidTarget,
	ErrNotFound,
	ErrAlreadyPending,
	ErrOTPNotFound,
	ErrOTPExpired,
	ErrOTPMismatch,
}

// IsClientError returns true if the error represents a client-side issue
// that will not succeed on retry without client-side changes.
func IsClientError(err error) bool {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsVerificationFailure reports whether err is one of the three terminal
// verification outcomes that consume a pending code.
func IsVerificationFailure(err error) bool {
	return errors.Is(err, ErrOTPNotFound) ||
		errors.Is(err, ErrOTPExpired) ||
		errors.Is(err, ErrOTPMismatch)
}
