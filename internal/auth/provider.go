package auth

import "context"

// SMSProvider delivers a code to a canonical phone number.
type SMSProvider interface {
	// SendOTP returns nil once the provider has accepted the message
	// (not necessarily delivered it).
	SendOTP(ctx context.Context, phone, code string) error
}

// EmailProvider delivers a code to a canonical email address.
type EmailProvider interface {
	SendOTP(ctx context.Context, email, code string) error
}
