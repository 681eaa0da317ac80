package adapter

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/aelexs/clinic-otp/internal/domain"
)

// errCorruptRecord marks a stored record that cannot be decoded. It wraps
// domain.ErrNotFound so a damaged record can never verify.
var errCorruptRecord = fmt.Errorf("corrupt otp record: %w", domain.ErrNotFound)

// Hash field names shared by the Redis scripts and decoder.
const (
	fieldID        = "id"
	fieldCode      = "code"
	fieldChannel   = "channel"
	fieldIssuedAt  = "issued_at"
	fieldExpiresAt = "expires_at"
)

// decodeFields rebuilds a record from its stored field map. Every field is
// required.
func decodeFields(target string, fields map[string]string) (*domain.OTPRecord, error) {
	code := fields[fieldCode]
	if code == "" {
		return nil, fmt.Errorf("%w: missing code", errCorruptRecord)
	}

	ch, err := domain.ParseChannel(fields[fieldChannel])
	if err != nil {
		return nil, fmt.Errorf("%w: channel %q", errCorruptRecord, fields[fieldChannel])
	}

	issuedAt, err := parseMillis(fields[fieldIssuedAt])
	if err != nil {
		return nil, fmt.Errorf("%w: issued_at: %w", errCorruptRecord, err)
	}
	expiresAt, err := parseMillis(fields[fieldExpiresAt])
	if err != nil {
		return nil, fmt.Errorf("%w: expires_at: %w", errCorruptRecord, err)
	}

	return &domain.OTPRecord{
		ID:        fields[fieldID],
		Target:    target,
		Code:      code,
		Channel:   ch,
		IssuedAt:  domain.FromMillis(issuedAt),
		ExpiresAt: domain.FromMillis(expiresAt),
	}, nil
}

// pairsToMap converts a flat HGETALL reply into a map.
func pairsToMap(pairs []string) map[string]string {
	m := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		m[pairs[i]] = pairs[i+1]
	}
	return m
}

func parseMillis(s string) (int64, error) {
	if s == "" {
		return 0, errors.New("missing")
	}
	return strconv.ParseInt(s, 10, 64)
}
