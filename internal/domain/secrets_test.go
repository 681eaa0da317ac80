package domain_test

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aelexs/clinic-otp/internal/domain"
)

func TestSecretString(t *testing.T) {
	secret := domain.SecretString("smtp-password-value")

	t.Run("String returns REDACTED", func(t *testing.T) {
		assert.Equal(t, "[REDACTED]", secret.String())
		assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", secret))
	})

	t.Run("Expose returns actual value", func(t *testing.T) {
		assert.Equal(t, "smtp-password-value", secret.Expose())
	})

	t.Run("IsEmpty", func(t *testing.T) {
		assert.False(t, secret.IsEmpty())
		assert.True(t, domain.SecretString("").IsEmpty())
	})

	t.Run("slog output is redacted under a neutral key", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))

		logger.Info("test", "gateway", secret)

		output := buf.String()
		assert.Contains(t, output, "[REDACTED]")
		assert.NotContains(t, output, "smtp-password-value")
	})
}

func TestSecretString_IsRef(t *testing.T) {
	assert.True(t, domain.SecretString("sm:otp/smtp").IsRef())
	assert.True(t, domain.SecretString("sm:otp/gateway#apikey").IsRef())
	assert.True(t, domain.SecretString("ssm:/otp/sms/apikey").IsRef())
	assert.False(t, domain.SecretString("hunter2").IsRef())
	assert.False(t, domain.SecretString("").IsRef())
}
