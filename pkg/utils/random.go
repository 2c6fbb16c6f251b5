// Package utils provides small shared helpers: secure random generators for
// the various code formats and scope string parsing.
package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"

	"github.com/tweenim/capauth/pkg/constants"
)

// GenerateSecureRandomString returns a URL-safe random string carrying n
// bytes of entropy, base64url-encoded without padding.
func GenerateSecureRandomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateDeviceCode returns a high-entropy, unguessable device code.
// Dashes and underscores are stripped so the code survives manual transport
// (terminals, QR payloads) without quoting surprises.
func GenerateDeviceCode() (string, error) {
	s, err := GenerateSecureRandomString(constants.DeviceCodeBytes)
	if err != nil {
		return "", err
	}
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, "_", ""), nil
}

// GenerateUserCode returns a short human-typable code drawn from the
// confusable-character-free alphabet.
func GenerateUserCode() (string, error) {
	alphabet := constants.UserCodeAlphabet
	max := big.NewInt(int64(len(alphabet)))
	var b strings.Builder
	for i := 0; i < constants.UserCodeLength; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random index: %w", err)
		}
		b.WriteByte(alphabet[idx.Int64()])
	}
	return b.String(), nil
}
