package models

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// CapabilityClaims is the claim set of a capability access token. It embeds
// the registered JWT claims and adds the capability-specific fields. The
// token is self-contained and never persisted; once signed it is immutable.
type CapabilityClaims struct {
	jwt.RegisteredClaims

	// TokenType is always the capability token marker; verification rejects
	// anything else.
	TokenType string `json:"token_type"`

	// Scope is the canonical space-joined granted scope list.
	Scope string `json:"scope"`

	// WalletID references the user's wallet at the wallet service.
	WalletID string `json:"wallet_id,omitempty"`

	// SessionID correlates all tokens minted in one authorization session.
	SessionID string `json:"session_id,omitempty"`

	// Context is the opaque launch context handed to the mini-app.
	Context map[string]interface{} `json:"context,omitempty"`
}

// Scopes returns the scope claim split into an ordered slice.
func (c *CapabilityClaims) Scopes() []string {
	if c.Scope == "" {
		return nil
	}
	return strings.Fields(c.Scope)
}

// HasScope reports whether the token grants the given scope.
func (c *CapabilityClaims) HasScope(scope string) bool {
	for _, s := range c.Scopes() {
		if s == scope {
			return true
		}
	}
	return false
}

// AudienceID returns the single audience (the mini-app id). Capability
// tokens are always minted with exactly one audience.
func (c *CapabilityClaims) AudienceID() string {
	if len(c.RegisteredClaims.Audience) == 0 {
		return ""
	}
	return c.RegisteredClaims.Audience[0]
}
