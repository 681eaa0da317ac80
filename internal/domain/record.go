package domain

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// OTPRecord is a single issued code for a canonical target.
type OTPRecord struct {
	ID        string
	Target    string
	Code      string
	Channel   Channel
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// NewRecordID returns a random correlation id for an OTPRecord.
func NewRecordID() string {
	return uuid.NewString()
}

// IsExpired reports whether the record is past its expiry at now.
// A record is still live at exactly ExpiresAt.
func (r OTPRecord) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// LogValue omits the code so records can be logged directly.
func (r OTPRecord) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("otp_id", r.ID),
		slog.String("channel", r.Channel.String()),
		slog.Time("expires_at", r.ExpiresAt),
	)
}

var _ slog.LogValuer = OTPRecord{}
