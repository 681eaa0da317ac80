package domain

import (
	"log/slog"
	"strings"
)

// Prefixes marking a secret value as a reference to an external store.
const (
	SecretsManagerRefPrefix = "sm:"
	SSMRefPrefix            = "ssm:"
)

// SecretString wraps sensitive configuration values such as SMTP passwords
// and SMS gateway API keys. It never renders its value through fmt or slog.
type SecretString string

// String returns a redacted placeholder, never the actual value.
func (s SecretString) String() string {
	return "[REDACTED]"
}

// LogValue implements slog.LogValuer so secrets stay redacted even when the
// handler's ReplaceAttr does not match the attribute key.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue("[REDACTED]")
}

// Expose returns the actual secret value.
// Call it only at the point the secret is handed to a client library.
func (s SecretString) Expose() string {
	return string(s)
}

// IsEmpty returns true if the secret is empty.
func (s SecretString) IsEmpty() bool {
	return len(s) == 0
}

// IsRef reports whether s names a Secrets Manager secret or an SSM
// parameter instead of carrying the value itself.
func (s SecretString) IsRef() bool {
	v := string(s)
	return strings.HasPrefix(v, SecretsManagerRefPrefix) || strings.HasPrefix(v, SSMRefPrefix)
}

var _ slog.LogValuer = SecretString("")
