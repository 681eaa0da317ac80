// Package auth holds the credential primitives of the OTP core: code
// generation, constant-time comparison, target hashing and the delivery
// provider contracts.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/aelexs/clinic-otp/internal/domain"
)

var codeSpan = big.NewInt(domain.OTPCodeMax - domain.OTPCodeMin + 1)

// GenerateCode returns a uniformly random code in [OTPCodeMin, OTPCodeMax].
// crypto/rand with big.Int rejection sampling avoids modulo bias.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", domain.OTPCodeLength, n.Int64()+domain.OTPCodeMin), nil
}

// CodesEqual compares a supplied code against the stored one in constant time.
func CodesEqual(supplied, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(stored)) == 1
}

// HashTarget returns the SHA-256 hex digest of a canonical target.
// Logs and metrics carry the hash, never the phone number or address.
func HashTarget(target string) string {
	h := sha256.Sum256([]byte(target))
	return hex.EncodeToString(h[:])
}
