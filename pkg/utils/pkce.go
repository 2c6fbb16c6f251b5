package utils

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

const (
	// RFC 7636 bounds on the code verifier length.
	minVerifierLength = 43
	maxVerifierLength = 128
)

// ValidCodeVerifier reports whether the verifier satisfies the RFC 7636
// length and character constraints.
func ValidCodeVerifier(verifier string) bool {
	if len(verifier) < minVerifierLength || len(verifier) > maxVerifierLength {
		return false
	}
	for _, c := range verifier {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-', c == '.', c == '_', c == '~':
		default:
			return false
		}
	}
	return true
}

// VerifyPKCES256 checks an S256 code challenge against its verifier. The
// comparison is constant-time; the challenge derives from a secret.
func VerifyPKCES256(verifier, challenge string) bool {
	if !ValidCodeVerifier(verifier) {
		return false
	}
	sum := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
