package models

import "time"

// MiniAppStatus is the lifecycle status of a registered mini-app.
type MiniAppStatus string

const (
	MiniAppStatusActive    MiniAppStatus = "active"
	MiniAppStatusSuspended MiniAppStatus = "suspended"
	MiniAppStatusPending   MiniAppStatus = "pending"
)

// MiniAppClassification is the review classification of a mini-app.
type MiniAppClassification string

const (
	MiniAppClassUnverified MiniAppClassification = "unverified"
	MiniAppClassVerified   MiniAppClassification = "verified"
	MiniAppClassOfficial   MiniAppClassification = "official"
)

// MiniApp is a registered third-party mini-application: the OAuth client of
// this service. Its registered scope manifest is the hard upper bound on
// anything it may ever request.
type MiniApp struct {
	ID uint `gorm:"primaryKey" json:"-"`

	// AppID is the public client_id.
	AppID string `gorm:"uniqueIndex;size:128" json:"app_id"`

	Name           string                `gorm:"size:256" json:"name"`
	DeveloperName  string                `gorm:"size:256" json:"developer_name"`
	IconURL        string                `gorm:"size:512" json:"icon_url,omitempty"`
	Status         MiniAppStatus         `gorm:"size:32;index" json:"status"`
	Classification MiniAppClassification `gorm:"size:32" json:"classification"`

	// RegisteredScopes is the manifest scope list granted at review time.
	RegisteredScopes []string `gorm:"serializer:json" json:"registered_scopes"`

	// RedirectURIs are the allowed redirect targets.
	RedirectURIs []string `gorm:"serializer:json" json:"redirect_uris"`

	// WebhookURL and WebhookSecret configure revocation notifications.
	WebhookURL    string `gorm:"size:512" json:"webhook_url,omitempty"`
	WebhookSecret string `gorm:"size:256" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName keeps the table name stable regardless of pluralization rules.
func (MiniApp) TableName() string { return "mini_apps" }

// IsActive reports whether the mini-app may take part in flows.
func (m *MiniApp) IsActive() bool { return m.Status == MiniAppStatusActive }

// IsVerified reports whether the mini-app passed review.
func (m *MiniApp) IsVerified() bool {
	return m.Classification == MiniAppClassVerified || m.Classification == MiniAppClassOfficial
}

// HasRegisteredScope reports whether scope is in the manifest.
func (m *MiniApp) HasRegisteredScope(scope string) bool {
	for _, s := range m.RegisteredScopes {
		if s == scope {
			return true
		}
	}
	return false
}

// AllowsRedirect reports whether uri is an allowed redirect target. An empty
// allow-list rejects everything; redirect URIs are registered at review time.
func (m *MiniApp) AllowsRedirect(uri string) bool {
	for _, u := range m.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}
