package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// HashCredential hashes a plaintext credential with bcrypt.
func HashCredential(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash credential: %w", err)
	}
	return string(hash), nil
}

// CheckCredential reports whether plaintext matches the stored hash.
func CheckCredential(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// randomDigits returns n random ASCII digits from a cryptographically secure
// source. The leading digit is never zero, so the value keeps its full width
// when treated as a number.
func randomDigits(n int) (string, error) {
	if n < 1 {
		return "", fmt.Errorf("digit count must be positive, got %d", n)
	}
	buf := make([]byte, n)
	for i := range buf {
		lo := int64(0)
		if i == 0 {
			lo = 1
		}
		v, err := rand.Int(rand.Reader, big.NewInt(10-lo))
		if err != nil {
			return "", fmt.Errorf("random digit: %w", err)
		}
		buf[i] = byte('0' + lo + v.Int64())
	}
	return string(buf), nil
}

// generatedUsernameLength matches the width of auto-provisioned numeric
// usernames; well under the 32-char username cap.
const generatedUsernameLength = 12

// generatedCredentialLength is the width of auto-generated secrets. The
// plaintext is never returned: an auto-provisioned account has no usable
// password until it is explicitly reset.
const generatedCredentialLength = 24

// GenerateUsername returns a random numeric username candidate. Uniqueness
// is enforced by the store; callers retry on collision.
func GenerateUsername() (string, error) {
	return randomDigits(generatedUsernameLength)
}

// GenerateCredential returns a random secret for accounts created without a
// supplied password.
func GenerateCredential() (string, error) {
	return randomDigits(generatedCredentialLength)
}
