// Package models defines the domain models for the capability authorization
// service.
package models

import "time"

// AuthorizationRequest is a pending OAuth 2.0 + PKCE authorization request.
// It is created by the authorize endpoint, never mutated, and consumed
// exactly once: either by user consent (approval or denial) or by TTL expiry.
type AuthorizationRequest struct {
	// ID is the opaque handle returned to the consent UI.
	ID string `json:"id"`

	// ClientID is the requesting mini-app.
	ClientID string `json:"client_id"`

	// RedirectURI is where the client is sent back after consent.
	RedirectURI string `json:"redirect_uri"`

	// Scopes is the ordered, deduplicated requested scope set.
	Scopes []string `json:"scopes"`

	// State is the client CSRF token; it must be echoed back verbatim.
	State string `json:"state"`

	// CodeChallenge is the S256 PKCE challenge.
	CodeChallenge string `json:"code_challenge"`

	// CodeChallengeMethod is always "S256"; stored for auditability only.
	CodeChallengeMethod string `json:"code_challenge_method"`

	// MiniAppName and MiniAppIcon are denormalized for the consent screen.
	MiniAppName string `json:"miniapp_name,omitempty"`
	MiniAppIcon string `json:"miniapp_icon,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired checks the logical TTL. Store eviction may lag, so every
// consumer re-checks the timestamp.
func (r *AuthorizationRequest) IsExpired() bool {
	return time.Now().UTC().After(r.ExpiresAt)
}

// AuthorizationCode is the one-time grant minted when the user approves an
// authorization request. It binds the approved request to the authenticated
// subject and is consumed exactly once at token exchange.
type AuthorizationCode struct {
	ClientID      string   `json:"client_id"`
	RedirectURI   string   `json:"redirect_uri"`
	Scopes        []string `json:"scopes"`
	State         string   `json:"state"`
	CodeChallenge string   `json:"code_challenge"`

	// Subject is the platform user who approved the request.
	Subject string `json:"subject"`

	// SessionID is the identity session the approval happened under; it is
	// carried into every token minted from this code.
	SessionID string `json:"session_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired checks the logical TTL of the code.
func (c *AuthorizationCode) IsExpired() bool {
	return time.Now().UTC().After(c.ExpiresAt)
}
