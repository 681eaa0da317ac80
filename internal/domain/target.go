package domain

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Channel is the delivery medium a code is sent through.
type Channel string

const (
	ChannelPhone Channel = "phone"
	ChannelEmail Channel = "email"
)

// ParseChannel converts a caller-declared method into a Channel.
func ParseChannel(method string) (Channel, error) {
	switch ch := Channel(strings.ToLower(strings.TrimSpace(method))); ch {
	case ChannelPhone, ChannelEmail:
		return ch, nil
	default:
		return "", fmt.Errorf("unsupported method %q: %w", method, ErrInvalidTarget)
	}
}

func (c Channel) String() string { return string(c) }

var (
	// phoneShape matches a raw phone number once formatting characters are removed.
	phoneShape = regexp.MustCompile(`^\+?\d+$`)

	// e164Pattern matches the canonical output: + followed by 7-15 digits.
	e164Pattern = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

	emailValidator = validator.New()
)

// Normalizer canonicalizes raw user-supplied targets into storage keys, so
// "0917 123 4567", "639171234567" and "+639171234567" all collide.
type Normalizer struct {
	countryCode string
	trunkPrefix string
}

// NewNormalizer creates a Normalizer for the given country calling code and
// local trunk prefix. Empty arguments fall back to the compiled defaults.
func NewNormalizer(countryCode, trunkPrefix string) Normalizer {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	if trunkPrefix == "" {
		trunkPrefix = DefaultTrunkPrefix
	}
	return Normalizer{
		countryCode: strings.TrimPrefix(countryCode, "+"),
		trunkPrefix: trunkPrefix,
	}
}

// Normalize returns the canonical form of raw. Phone-shaped input becomes a
// +-prefixed international number; anything else is treated as opaque, and
// email addresses are lowercased.
func (n Normalizer) Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("target cannot be empty: %w", ErrInvalidTarget)
	}

	if digits := stripPhoneFormatting(trimmed); phoneShape.MatchString(digits) {
		return n.normalizePhone(digits)
	}

	if strings.Contains(trimmed, "@") {
		return strings.ToLower(trimmed), nil
	}
	return trimmed, nil
}

// NormalizeFor normalizes raw and checks that the canonical form can be
// delivered over ch.
func (n Normalizer) NormalizeFor(raw string, ch Channel) (string, error) {
	target, err := n.Normalize(raw)
	if err != nil {
		return "", err
	}

	switch ch {
	case ChannelPhone:
		if !e164Pattern.MatchString(target) {
			return "", fmt.Errorf("%q is not a phone number: %w", raw, ErrInvalidTarget)
		}
	case ChannelEmail:
		if err := emailValidator.Var(target, "required,email"); err != nil {
			return "", fmt.Errorf("%q is not an email address: %w", raw, ErrInvalidTarget)
		}
	default:
		return "", fmt.Errorf("unsupported channel %q: %w", ch, ErrInvalidTarget)
	}
	return target, nil
}

func (n Normalizer) normalizePhone(s string) (string, error) {
	digits := strings.TrimPrefix(s, "+")
	if !strings.HasPrefix(s, "+") && strings.HasPrefix(digits, n.trunkPrefix) {
		digits = n.countryCode + strings.TrimPrefix(digits, n.trunkPrefix)
	}

	canonical := "+" + digits
	if !e164Pattern.MatchString(canonical) {
		return "", fmt.Errorf("phone number %q is not valid E.164: %w", s, ErrInvalidTarget)
	}
	return canonical, nil
}

// stripPhoneFormatting removes whitespace and the separators people type
// into phone fields.
func stripPhoneFormatting(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		switch r {
		case '-', '(', ')', '.':
			return -1
		}
		return r
	}, s)
}
