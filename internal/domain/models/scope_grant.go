package models

import "time"

// GrantMethod records how a scope grant was obtained.
type GrantMethod string

const (
	// GrantMethodConsent is an explicit approval on the consent screen.
	GrantMethodConsent GrantMethod = "oauth_consent"
	// GrantMethodDevice is an approval through the device flow.
	GrantMethodDevice GrantMethod = "device_flow"
)

// ScopeGrant is a persisted prior consent: user X allowed client Y to use
// scope Z. Consulted by the authorization flow so users are not re-prompted
// for scopes they already approved. Critical scopes are exempt: they always
// require per-use confirmation regardless of any stored grant.
type ScopeGrant struct {
	ID         uint        `gorm:"primaryKey" json:"-"`
	Subject    string      `gorm:"size:256;uniqueIndex:idx_grant_key" json:"subject"`
	ClientID   string      `gorm:"size:128;uniqueIndex:idx_grant_key" json:"client_id"`
	Scope      string      `gorm:"size:128;uniqueIndex:idx_grant_key" json:"scope"`
	Method     GrantMethod `gorm:"size:32" json:"method"`
	ApprovedAt time.Time   `json:"approved_at"`
}

// TableName keeps the table name stable.
func (ScopeGrant) TableName() string { return "scope_grants" }
