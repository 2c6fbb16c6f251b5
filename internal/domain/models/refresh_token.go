package models

import "time"

// RefreshTokenRecord is the server-side state behind an opaque refresh
// token. The token string itself is the lookup key and is never stored in
// the record. Rotation is exactly-once: using a token atomically removes the
// record and mints a replacement.
type RefreshTokenRecord struct {
	// Subject is the platform user the token acts for.
	Subject string `json:"subject"`

	// ClientID is the mini-app the token was issued to.
	ClientID string `json:"client_id"`

	// Scopes is the scope set the original grant carried; refreshed access
	// tokens get exactly this set, never more.
	Scopes []string `json:"scopes"`

	// SessionID carries over into every access token minted from this record.
	SessionID string `json:"session_id,omitempty"`

	// WalletID is the resolved wallet reference, carried to avoid
	// re-resolving it on every refresh.
	WalletID string `json:"wallet_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired checks the logical TTL independent of store eviction.
func (r *RefreshTokenRecord) IsExpired() bool {
	return time.Now().UTC().After(r.ExpiresAt)
}
