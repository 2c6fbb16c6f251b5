package models

import "time"

// AuditEventType classifies audit trail entries.
type AuditEventType string

const (
	AuditEventTokenIssued        AuditEventType = "token_issued"
	AuditEventTokenRefreshed     AuditEventType = "token_refreshed"
	AuditEventConsentGranted     AuditEventType = "consent_granted"
	AuditEventConsentDenied      AuditEventType = "consent_denied"
	AuditEventPermissionsRevoked AuditEventType = "permissions_revoked"
	AuditEventWebhookReceived    AuditEventType = "webhook_received"
)

// AuditEvent is an append-only audit trail entry. Events are written to the
// local audit table synchronously and published to the event bus best-effort.
type AuditEvent struct {
	ID        uint           `gorm:"primaryKey" json:"-"`
	EventID   string         `gorm:"uniqueIndex;size:64" json:"event_id"`
	Type      AuditEventType `gorm:"size:64;index" json:"type"`
	Subject   string         `gorm:"size:256;index" json:"subject,omitempty"`
	ClientID  string         `gorm:"size:128;index" json:"client_id,omitempty"`
	Scopes    []string       `gorm:"serializer:json" json:"scopes,omitempty"`
	Reason    string         `gorm:"size:256" json:"reason,omitempty"`
	Metadata  map[string]any `gorm:"serializer:json" json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// TableName keeps the table name stable.
func (AuditEvent) TableName() string { return "audit_events" }
