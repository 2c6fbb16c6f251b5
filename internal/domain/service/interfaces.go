// Package service defines the ports between the application layer and the
// infrastructure it depends on. Stores are backed by Redis or Postgres,
// collaborators by breaker-wrapped HTTP clients; the application layer only
// sees these interfaces.
package service

import (
	"context"
	"time"

	"github.com/tweenim/capauth/internal/domain/models"
)

// AuthRequestStore holds pending authorization requests between the
// /authorize redirect and the consent decision.
type AuthRequestStore interface {
	Save(ctx context.Context, req *models.AuthorizationRequest) error
	// Get returns the request, or a not_found error if absent or expired.
	Get(ctx context.Context, id string) (*models.AuthorizationRequest, error)
	// Consume returns the request and removes it in one step; a request can
	// resolve to at most one consent decision.
	Consume(ctx context.Context, id string) (*models.AuthorizationRequest, error)
}

// AuthCodeStore holds issued authorization codes until redemption.
type AuthCodeStore interface {
	Save(ctx context.Context, code string, ac *models.AuthorizationCode) error
	// Consume redeems the code exactly once; a second call for the same code
	// returns invalid_grant.
	Consume(ctx context.Context, code string) (*models.AuthorizationCode, error)
}

// DeviceAuthStore holds device flow sessions, addressable by both the device
// code (polled by the device) and the user code (entered by the user).
type DeviceAuthStore interface {
	Save(ctx context.Context, s *models.DeviceAuthSession) error
	GetByDeviceCode(ctx context.Context, deviceCode string) (*models.DeviceAuthSession, error)
	GetByUserCode(ctx context.Context, userCode string) (*models.DeviceAuthSession, error)
	// Update persists a status transition without extending the session TTL.
	Update(ctx context.Context, s *models.DeviceAuthSession) error
	// Delete removes the session and its user-code index after the flow
	// resolves.
	Delete(ctx context.Context, deviceCode string) error
}

// RefreshTokenStore manages opaque refresh tokens with exactly-once rotation.
type RefreshTokenStore interface {
	Save(ctx context.Context, token string, rec *models.RefreshTokenRecord) error
	// Rotate atomically consumes the token and returns its record. Concurrent
	// calls with the same token succeed at most once; losers get
	// invalid_grant.
	Rotate(ctx context.Context, token string) (*models.RefreshTokenRecord, error)
	// RevokeAll removes every live refresh token for the (subject, client)
	// pair, using the secondary index rather than scanning the keyspace.
	RevokeAll(ctx context.Context, subject, clientID string) (int, error)
}

// RevocationLedger is the authoritative record of revoked scopes. Writes are
// synchronous: a revocation is effective once Record returns.
type RevocationLedger interface {
	Record(ctx context.Context, entries []models.RevocationEntry) error
	// RevokedSince returns, for each requested scope, the revocation time if
	// one is recorded for the (subject, client, scope) triple.
	RevokedSince(ctx context.Context, subject, clientID string, scopes []string) (map[string]time.Time, error)
}

// IdempotencyStore deduplicates externally-supplied idempotency keys.
type IdempotencyStore interface {
	// CheckAndSet marks the key as seen with the given TTL. It returns true
	// if the key was fresh, false if already present.
	CheckAndSet(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// StoreResponse caches the serialized response for replay on duplicates.
	StoreResponse(ctx context.Context, key string, status int, body []byte, ttl time.Duration) error
	// GetResponse returns a previously stored response, or a not_found error.
	GetResponse(ctx context.Context, key string) (int, []byte, error)
}

// MiniAppRegistry resolves registered mini-apps by client_id.
type MiniAppRegistry interface {
	// GetByAppID returns the mini-app, or a not_found error. Implementations
	// may serve from a short-lived cache.
	GetByAppID(ctx context.Context, appID string) (*models.MiniApp, error)
}

// GrantStore persists prior consent decisions.
type GrantStore interface {
	Record(ctx context.Context, grants []models.ScopeGrant) error
	// GrantedScopes returns the scopes the subject previously approved for
	// the client.
	GrantedScopes(ctx context.Context, subject, clientID string) ([]string, error)
	// Remove deletes stored grants for the given scopes; an empty scope list
	// removes all grants for the pair.
	Remove(ctx context.Context, subject, clientID string, scopes []string) (int, error)
}

// IdentityProvider is the upstream identity service. Calls go through a
// circuit breaker; when it is open the caller sees a service_unavailable
// error without a network attempt.
type IdentityProvider interface {
	// ResolveSession validates the end-user session cookie or token and
	// returns the stable subject identifier and identity session id.
	ResolveSession(ctx context.Context, sessionToken string) (subject, sessionID string, err error)
	// NotifyRevocation tells the identity provider to drop its own grants for
	// the pair. Best-effort: failures are logged, never surfaced.
	NotifyRevocation(ctx context.Context, subject, clientID string, scopes []string) error
}

// WalletService resolves the wallet reference embedded in tokens that carry
// wallet scopes. Breaker-wrapped like IdentityProvider.
type WalletService interface {
	ResolveWalletID(ctx context.Context, subject string) (string, error)
}

// WebhookDispatcher delivers signed revocation notifications to mini-app
// webhook endpoints. Best-effort with retries; never blocks the revocation
// from taking effect.
type WebhookDispatcher interface {
	NotifyRevocation(ctx context.Context, app *models.MiniApp, subject string, scopes []string, revokedAt time.Time) error
}

// AuditPublisher emits audit events to the event bus. The local audit table
// write is separate and synchronous; publishing is best-effort.
type AuditPublisher interface {
	Publish(ctx context.Context, event *models.AuditEvent) error
	Close() error
}

// AuditRepository is the synchronous local audit trail.
type AuditRepository interface {
	Append(ctx context.Context, event *models.AuditEvent) error
	ListBySubject(ctx context.Context, subject string, limit int) ([]models.AuditEvent, error)
}
