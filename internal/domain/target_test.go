package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/clinic-otp/internal/domain"
)

func TestNormalize(t *testing.T) {
	n := domain.NewNormalizer("63", "0")

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"trunk prefix replaced by country code", "09171234567", "+639171234567"},
		{"country code without plus", "639171234567", "+639171234567"},
		{"already canonical", "+639171234567", "+639171234567"},
		{"whitespace stripped", " 0917 123 4567 ", "+639171234567"},
		{"dashes and parentheses stripped", "(0917) 123-4567", "+639171234567"},
		{"other international number kept", "+14155550100", "+14155550100"},
		{"email lowercased and trimmed", "  Patient@Clinic.COM ", "patient@clinic.com"},
		{"opaque string kept", "front-desk", "front-desk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.raw)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_PrefixStylesCollide(t *testing.T) {
	n := domain.NewNormalizer("", "")

	variants := []string{"09171234567", "639171234567", "+639171234567", "0917 123 4567"}
	seen := make(map[string]struct{})
	for _, v := range variants {
		got, err := n.Normalize(v)
		require.NoError(t, err)
		seen[got] = struct{}{}
	}

	assert.Len(t, seen, 1, "all prefix styles must normalize to one key")
}

func TestNormalize_IsIdempotent(t *testing.T) {
	n := domain.NewNormalizer("63", "0")

	for _, raw := range []string{"09171234567", "A@B.com", "+14155550100"} {
		once, err := n.Normalize(raw)
		require.NoError(t, err)
		twice, err := n.Normalize(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	}
}

func TestNormalize_Errors(t *testing.T) {
	n := domain.NewNormalizer("63", "0")

	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"too short", "0917"},
		{"too long", "+1234567890123456"},
		{"plus followed by zero", "+0917123456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.raw)

			require.ErrorIs(t, err, domain.ErrInvalidTarget)
			assert.Empty(t, got)
		})
	}
}

func TestNormalizeFor(t *testing.T) {
	n := domain.NewNormalizer("63", "0")

	t.Run("phone channel accepts phone", func(t *testing.T) {
		got, err := n.NormalizeFor("09171234567", domain.ChannelPhone)
		require.NoError(t, err)
		assert.Equal(t, "+639171234567", got)
	})

	t.Run("email channel accepts email", func(t *testing.T) {
		got, err := n.NormalizeFor("A@B.com", domain.ChannelEmail)
		require.NoError(t, err)
		assert.Equal(t, "a@b.com", got)
	})

	t.Run("phone channel rejects email", func(t *testing.T) {
		_, err := n.NormalizeFor("a@b.com", domain.ChannelPhone)
		assert.ErrorIs(t, err, domain.ErrInvalidTarget)
	})

	t.Run("email channel rejects phone", func(t *testing.T) {
		_, err := n.NormalizeFor("09171234567", domain.ChannelEmail)
		assert.ErrorIs(t, err, domain.ErrInvalidTarget)
	})

	t.Run("email channel rejects malformed address", func(t *testing.T) {
		_, err := n.NormalizeFor("not-an-email@", domain.ChannelEmail)
		assert.ErrorIs(t, err, domain.ErrInvalidTarget)
	})

	t.Run("unknown channel rejected", func(t *testing.T) {
		_, err := n.NormalizeFor("a@b.com", domain.Channel("fax"))
		assert.ErrorIs(t, err, domain.ErrInvalidTarget)
	})
}

func TestParseChannel(t *testing.T) {
	tests := []struct {
		method  string
		want    domain.Channel
		wantErr bool
	}{
		{"phone", domain.ChannelPhone, false},
		{"email", domain.ChannelEmail, false},
		{" EMAIL ", domain.ChannelEmail, false},
		{"sms", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			got, err := domain.ParseChannel(tt.method)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidTarget)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOTPRecord_IsExpired(t *testing.T) {
	expiresAt := time.Date(2026, 1, 15, 12, 5, 0, 0, time.UTC)
	rec := domain.OTPRecord{ExpiresAt: expiresAt}

	assert.False(t, rec.IsExpired(expiresAt.Add(-time.Second)))
	assert.False(t, rec.IsExpired(expiresAt), "live at exactly ExpiresAt")
	assert.True(t, rec.IsExpired(expiresAt.Add(time.Millisecond)))
}

func TestNewRecordID(t *testing.T) {
	a, b := domain.NewRecordID(), domain.NewRecordID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
