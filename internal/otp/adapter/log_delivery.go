package adapter

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aelexs/clinic-otp/internal/auth"
)

var (
	_ auth.SMSProvider   = (*LogSMSProvider)(nil)
	_ auth.EmailProvider = (*LogEmailProvider)(nil)
)

// LogSMSProvider logs OTP delivery instead of sending an SMS. For local
// development only; config validation rejects it in prod.
type LogSMSProvider struct {
	logger *slog.Logger
}

// NewLogSMSProvider creates a LogSMSProvider that writes to logger.
func NewLogSMSProvider(logger *slog.Logger) *LogSMSProvider {
	return &LogSMSProvider{logger: logger}
}

// SendOTP logs the code with a masked phone number.
func (p *LogSMSProvider) SendOTP(ctx context.Context, phone, otp string) error {
	p.logger.InfoContext(ctx, "otp delivery (log-only)",
		slog.String("channel", "phone"),
		slog.String("phone", maskPhone(phone)),
		slog.String("otp", otp),
	)
	return nil
}

// LogEmailProvider logs OTP delivery instead of sending an email.
type LogEmailProvider struct {
	logger *slog.Logger
}

// NewLogEmailProvider creates a LogEmailProvider that writes to logger.
func NewLogEmailProvider(logger *slog.Logger) *LogEmailProvider {
	return &LogEmailProvider{logger: logger}
}

// SendOTP logs the code with a masked address.
func (p *LogEmailProvider) SendOTP(ctx context.Context, email, otp string) error {
	p.logger.InfoContext(ctx, "otp delivery (log-only)",
		slog.String("channel", "email"),
		slog.String("email", maskEmail(email)),
		slog.String("otp", otp),
	)
	return nil
}

// maskPhone shows only the last 4 digits. Numbers shorter than 5 characters
// are fully masked.
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "***" + phone[len(phone)-4:]
}

// maskEmail keeps the first character of the local part and the domain.
func maskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "****"
	}
	return email[:1] + "***" + email[at:]
}
