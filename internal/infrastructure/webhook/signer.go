// Package webhook signs outbound mini-app notifications and verifies inbound
// collaborator webhooks. Signatures are HMAC-SHA256 over "{timestamp}.{body}"
// with a bounded clock skew window.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/tweenim/capauth/pkg/constants"
	apperrors "github.com/tweenim/capauth/pkg/errors"
)

// Sign computes the hex HMAC-SHA256 signature over "{timestamp}.{body}".
func Sign(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature against the expected one for
// the given secret, timestamp and body. The timestamp must be within the
// accepted skew window of now; comparison is constant-time.
func VerifySignature(secret, timestampHeader, signature string, body []byte, now time.Time) error {
	if timestampHeader == "" || signature == "" {
		return apperrors.ErrInvalidSignature("missing webhook signature headers")
	}

	timestamp, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return apperrors.ErrInvalidSignature("malformed webhook timestamp")
	}

	skew := now.Unix() - timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(constants.WebhookMaxSkew/time.Second) {
		return apperrors.ErrInvalidSignature("webhook timestamp outside accepted window")
	}

	expected := Sign(secret, timestamp, body)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return apperrors.ErrInvalidSignature("webhook signature mismatch")
	}
	return nil
}
