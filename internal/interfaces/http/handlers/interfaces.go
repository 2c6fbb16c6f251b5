package handlers

import (
	"context"

	"github.com/tweenim/capauth/internal/application/dto"
)

// AuthFlow is the slice of the authorization-code flow the handlers need.
type AuthFlow interface {
	Authorize(ctx context.Context, in dto.AuthorizeInput) (*dto.ConsentDescriptor, error)
	DescribeForSubject(ctx context.Context, requestID, subject string) (*dto.ConsentDescriptor, error)
	Consent(ctx context.Context, in dto.ConsentInput) (*dto.ConsentResult, error)
	ExchangeCode(ctx context.Context, in dto.TokenInput) (*dto.TokenResponse, error)
	Refresh(ctx context.Context, in dto.TokenInput) (*dto.TokenResponse, error)
}

// DeviceFlow is the device authorization flow surface.
type DeviceFlow interface {
	Start(ctx context.Context, in dto.DeviceStartInput) (*dto.DeviceStartResponse, error)
	Verify(ctx context.Context, in dto.DeviceVerifyInput) (*dto.DeviceVerifyResponse, error)
	Poll(ctx context.Context, in dto.TokenInput) (*dto.TokenResponse, error)
}

// RevocationFlow is the revocation surface.
type RevocationFlow interface {
	Revoke(ctx context.Context, in dto.RevokeInput) (*dto.RevokeResult, error)
	HandleCollaboratorWebhook(ctx context.Context, idempotencyKey string, body []byte) (*dto.WebhookAck, error)
}

// SessionResolver resolves the platform session a consent decision runs under.
type SessionResolver interface {
	ResolveSession(ctx context.Context, sessionToken string) (subject, sessionID string, err error)
}
