package models

import "time"

// DeviceAuthStatus is the status of a device authorization session.
type DeviceAuthStatus string

const (
	// DeviceAuthStatusPending means the user has not yet decided.
	DeviceAuthStatusPending DeviceAuthStatus = "pending"
	// DeviceAuthStatusApproved means the user approved the request.
	DeviceAuthStatusApproved DeviceAuthStatus = "approved"
	// DeviceAuthStatusDenied means the user denied the request.
	DeviceAuthStatusDenied DeviceAuthStatus = "denied"
)

// DeviceAuthSession is the state of one RFC 8628 device authorization flow,
// from code issuance until the device collects its tokens or the session
// expires.
type DeviceAuthSession struct {
	// DeviceCode is the long unguessable code the device polls with.
	DeviceCode string `json:"device_code"`

	// UserCode is the short human-typable code entered on a second device.
	UserCode string `json:"user_code"`

	// ClientID is the mini-app that started the flow.
	ClientID string `json:"client_id"`

	// Scopes is the ordered requested scope set.
	Scopes []string `json:"scopes"`

	Status DeviceAuthStatus `json:"status"`

	// Subject is the approving user; set once Status is approved.
	Subject string `json:"subject,omitempty"`

	// SessionID is the identity session the approval happened under.
	SessionID string `json:"session_id,omitempty"`

	// ApprovedScopes is the subset the user actually approved; may be
	// narrower than Scopes.
	ApprovedScopes []string `json:"approved_scopes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	// Interval is the minimum seconds between polls.
	Interval int `json:"interval"`

	// LastPollAt is when the device last polled; used to enforce Interval.
	LastPollAt time.Time `json:"last_poll_at,omitempty"`
}

// IsExpired checks the logical TTL independent of store eviction.
func (s *DeviceAuthSession) IsExpired() bool {
	return time.Now().UTC().After(s.ExpiresAt)
}
