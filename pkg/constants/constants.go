// Package constants defines system-wide constants for the capability
// authorization service. It provides type-safe constant definitions used
// across all modules.
package constants

import "time"

// ================================================================================
// Token Constants
// ================================================================================

// TokenType marks the kind of artifact carried inside a signed claim set.
type TokenType string

const (
	// TokenTypeCapability is the token_type claim carried by every minted
	// capability token. Verification rejects anything else.
	TokenTypeCapability TokenType = "capability_access_token"

	// TokenTypeBearer is the token type reported in token endpoint responses.
	TokenTypeBearer TokenType = "Bearer"
)

// JWTAlgorithm identifies a JWT signing algorithm.
type JWTAlgorithm string

// AlgorithmRS256 is the single accepted signing algorithm. Tokens declaring
// any other algorithm are rejected before key lookup.
const AlgorithmRS256 JWTAlgorithm = "RS256"

const (
	// CapabilityTokenTTL is the lifetime of a minted capability token.
	CapabilityTokenTTL = 1 * time.Hour

	// RefreshTokenTTL is the lifetime of an opaque refresh token.
	RefreshTokenTTL = 30 * 24 * time.Hour

	// AuthRequestTTL is the lifetime of a pending authorization request.
	AuthRequestTTL = 15 * time.Minute

	// AuthCodeTTL is the lifetime of a one-time authorization code.
	AuthCodeTTL = 10 * time.Minute

	// DeviceAuthTTL is the lifetime of a device authorization session.
	DeviceAuthTTL = 900 * time.Second

	// DeviceAuthInterval is the minimum device polling interval.
	DeviceAuthInterval = 5 * time.Second

	// RevocationSkew is added on top of CapabilityTokenTTL when writing
	// revocation ledger entries, so that store eviction can never outrun a
	// still-valid token.
	RevocationSkew = 5 * time.Minute

	// ConsentDescriptorTTL is the validity window reported to consent UIs.
	ConsentDescriptorTTL = 5 * time.Minute
)

// ================================================================================
// Flow Constants
// ================================================================================

const (
	// ResponseTypeCode is the only supported authorization response type.
	ResponseTypeCode = "code"

	// CodeChallengeMethodS256 is the only supported PKCE challenge method.
	CodeChallengeMethodS256 = "S256"

	// GrantTypeAuthorizationCode exchanges a one-time code for tokens.
	GrantTypeAuthorizationCode = "authorization_code"

	// GrantTypeRefreshToken rotates a refresh token into a fresh pair.
	GrantTypeRefreshToken = "refresh_token"

	// GrantTypeDeviceCode is the RFC 8628 device grant URN.
	GrantTypeDeviceCode = "urn:ietf:params:oauth:grant-type:device_code"

	// UserCodeAlphabet is the confusable-character-free alphabet used for
	// human-typable device user codes (no 0/O, 1/I/L).
	UserCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	// UserCodeLength is the number of characters in a device user code.
	UserCodeLength = 8

	// DeviceCodeBytes is the entropy, in bytes, of a device code.
	DeviceCodeBytes = 32

	// AuthCodeBytes is the entropy, in bytes, of an authorization code.
	AuthCodeBytes = 32

	// RefreshTokenBytes is the entropy, in bytes, of a refresh token.
	RefreshTokenBytes = 32
)

// ================================================================================
// Circuit Breaker Defaults
// ================================================================================

const (
	// BreakerFailureThreshold is the consecutive-failure count that trips a
	// closed breaker open.
	BreakerFailureThreshold = 5

	// BreakerRecoveryTimeout is how long an open breaker waits before
	// letting a probe call through.
	BreakerRecoveryTimeout = 60 * time.Second

	// BreakerHalfOpenQuota is the number of consecutive half-open successes
	// required to close the breaker again.
	BreakerHalfOpenQuota = 3

	// DownstreamCallTimeout bounds every breaker-wrapped downstream call so
	// a stalled dependency cannot exhaust the request pool.
	DownstreamCallTimeout = 30 * time.Second
)

// ================================================================================
// Webhook Constants
// ================================================================================

const (
	// WebhookTimestampHeader carries the unix timestamp the signature covers.
	WebhookTimestampHeader = "X-Tween-Timestamp"

	// WebhookSignatureHeader carries the hex HMAC-SHA256 signature.
	WebhookSignatureHeader = "X-Tween-Signature"

	// WebhookIdempotencyHeader carries the sender-chosen idempotency key.
	WebhookIdempotencyHeader = "X-Tween-Idempotency-Key"

	// WebhookMaxSkew is the maximum accepted clock skew, in either
	// direction, between the signed timestamp and the receiver clock.
	WebhookMaxSkew = 300 * time.Second

	// WebhookIdempotencyTTL is how long delivered webhook idempotency keys
	// are remembered for deduplication.
	WebhookIdempotencyTTL = 24 * time.Hour

	// WebhookDispatchTimeout bounds a single outbound webhook delivery.
	WebhookDispatchTimeout = 10 * time.Second
)

// IdempotencyKeyHeader is the inbound header used for idempotent endpoints.
const IdempotencyKeyHeader = "Idempotency-Key"

// IdempotencyTTL is how long idempotent responses are retained.
const IdempotencyTTL = 24 * time.Hour

// ================================================================================
// Redis Key Prefixes
// ================================================================================

const (
	// KeyPrefixAuthRequest namespaces pending authorization requests.
	KeyPrefixAuthRequest = "capauth:authreq:"

	// KeyPrefixAuthCode namespaces one-time authorization codes.
	KeyPrefixAuthCode = "capauth:authcode:"

	// KeyPrefixDeviceCode namespaces device auth sessions by device code.
	KeyPrefixDeviceCode = "capauth:devauth:dc:"

	// KeyPrefixUserCode is the secondary index from user code to device code.
	KeyPrefixUserCode = "capauth:devauth:uc:"

	// KeyPrefixRefreshToken namespaces refresh token records.
	KeyPrefixRefreshToken = "capauth:rt:"

	// KeyPrefixRefreshIndex namespaces the per-(user,client) refresh index.
	KeyPrefixRefreshIndex = "capauth:rtidx:"

	// KeyPrefixRevocation namespaces revocation ledger entries.
	KeyPrefixRevocation = "capauth:revoked:"

	// KeyPrefixIdempotency namespaces idempotency markers.
	KeyPrefixIdempotency = "capauth:idem:"
)

// ================================================================================
// Error Codes
// ================================================================================

// ErrorCode is the machine-readable code reported in error responses. Codes
// follow RFC 6749 / RFC 8628 vocabulary where one exists.
type ErrorCode string

const (
	ErrCodeInvalidRequest          ErrorCode = "invalid_request"
	ErrCodeInvalidClient           ErrorCode = "invalid_client"
	ErrCodeInvalidGrant            ErrorCode = "invalid_grant"
	ErrCodeInvalidScope            ErrorCode = "invalid_scope"
	ErrCodeUnsupportedResponseType ErrorCode = "unsupported_response_type"
	ErrCodeUnsupportedGrantType    ErrorCode = "unsupported_grant_type"
	ErrCodeAccessDenied            ErrorCode = "access_denied"
	ErrCodeAuthorizationPending    ErrorCode = "authorization_pending"
	ErrCodeSlowDown                ErrorCode = "slow_down"
	ErrCodeExpiredToken            ErrorCode = "expired_token"
	ErrCodeInvalidToken            ErrorCode = "invalid_token"
	ErrCodeInsufficientScope       ErrorCode = "insufficient_scope"
	ErrCodeConflict                ErrorCode = "conflict"
	ErrCodeServiceUnavailable      ErrorCode = "service_unavailable"
	ErrCodeInvalidSignature        ErrorCode = "invalid_signature"
	ErrCodeServerError             ErrorCode = "server_error"
	ErrCodeNotFound                ErrorCode = "not_found"

	// Internal verification kinds. Never serialized to clients: the HTTP
	// layer collapses all of them to invalid_token to avoid an oracle.
	ErrCodeTokenExpired     ErrorCode = "token_expired"
	ErrCodeBadSignature     ErrorCode = "bad_signature"
	ErrCodeIssuerMismatch   ErrorCode = "issuer_mismatch"
	ErrCodeWrongTokenType   ErrorCode = "wrong_token_type"
	ErrCodeTokenRevoked     ErrorCode = "token_revoked"
	ErrCodeTokenNotYetValid ErrorCode = "token_not_yet_valid"
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey is the type for values stored in request contexts.
type ContextKey string

const (
	// ContextKeyRequestID carries the per-request correlation id.
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyTraceID carries the distributed trace id, when tracing is on.
	ContextKeyTraceID ContextKey = "trace_id"

	// ContextKeyClaims carries verified capability claims set by middleware.
	ContextKeyClaims ContextKey = "capability_claims"
)

// ================================================================================
// Misc
// ================================================================================

const (
	// ServiceName identifies this service in logs, traces and audit events.
	ServiceName = "capauth"

	// WebhookVersionHeader value reported on outbound webhooks.
	WebhookVersion = "1.0"
)
