package service

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/tweenim/capauth/internal/application/dto"
	"github.com/tweenim/capauth/internal/domain/models"
	"github.com/tweenim/capauth/internal/domain/scope"
	domainsvc "github.com/tweenim/capauth/internal/domain/service"
	"github.com/tweenim/capauth/pkg/constants"
	apperrors "github.com/tweenim/capauth/pkg/errors"
	"github.com/tweenim/capauth/pkg/logger"
	"github.com/tweenim/capauth/pkg/utils"
)

// DeviceFlowService drives the RFC 8628 device authorization flow: start,
// user verification on a second device, and token polling.
type DeviceFlowService struct {
	registry        domainsvc.MiniAppRegistry
	sessions        domainsvc.DeviceAuthStore
	grants          domainsvc.GrantStore
	identity        domainsvc.IdentityProvider
	assembler       *TokenAssembler
	audit           *AuditTrail
	verificationURI string
	log             logger.Logger
	now             func() time.Time
}

// NewDeviceFlowService wires the device flow.
func NewDeviceFlowService(
	registry domainsvc.MiniAppRegistry,
	sessions domainsvc.DeviceAuthStore,
	grants domainsvc.GrantStore,
	identity domainsvc.IdentityProvider,
	assembler *TokenAssembler,
	audit *AuditTrail,
	verificationURI string,
	log logger.Logger,
) *DeviceFlowService {
	return &DeviceFlowService{
		registry:        registry,
		sessions:        sessions,
		grants:          grants,
		identity:        identity,
		assembler:       assembler,
		audit:           audit,
		verificationURI: verificationURI,
		log:             log.WithComponent("device_flow"),
		now:             time.Now,
	}
}

// Start opens a device authorization session and returns the code pair.
func (s *DeviceFlowService) Start(ctx context.Context, in dto.DeviceStartInput) (*dto.DeviceStartResponse, error) {
	if in.ClientID == "" {
		return nil, apperrors.ErrInvalidRequest("client_id is required")
	}
	scopes := utils.ParseScopeString(in.Scope)
	if len(scopes) == 0 {
		return nil, apperrors.ErrInvalidScope("at least one scope must be requested")
	}

	app, err := s.registry.GetByAppID(ctx, in.ClientID)
	if err != nil {
		return nil, err
	}
	if !app.IsActive() {
		return nil, apperrors.ErrInvalidClient("mini-app is not active")
	}
	if result := scope.Validate(scopes, app.RegisteredScopes); result.Denies() {
		denied := make([]string, 0, len(result.Denied))
		for _, d := range result.Denied {
			denied = append(denied, d.Scope)
		}
		return nil, apperrors.ErrScopeEscalation("requested scopes not registered: " + utils.JoinScopes(denied))
	}

	deviceCode, err := utils.GenerateDeviceCode()
	if err != nil {
		return nil, err
	}
	userCode, err := utils.GenerateUserCode()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	session := &models.DeviceAuthSession{
		DeviceCode: deviceCode,
		UserCode:   userCode,
		ClientID:   in.ClientID,
		Scopes:     scopes,
		Status:     models.DeviceAuthStatusPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(constants.DeviceAuthTTL),
		Interval:   int(constants.DeviceAuthInterval / time.Second),
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	s.log.Info(ctx, "device flow started", logger.Fields{
		"client":    in.ClientID,
		"user_code": userCode,
	})
	return &dto.DeviceStartResponse{
		DeviceCode:              deviceCode,
		UserCode:                userCode,
		VerificationURI:         s.verificationURI,
		VerificationURIComplete: s.verificationURI + "?user_code=" + url.QueryEscape(userCode),
		ExpiresIn:               int(constants.DeviceAuthTTL / time.Second),
		Interval:                session.Interval,
	}, nil
}

// Verify applies the user's decision to a pending session, identified by the
// user code entered on the second device.
func (s *DeviceFlowService) Verify(ctx context.Context, in dto.DeviceVerifyInput) (*dto.DeviceVerifyResponse, error) {
	subject, sessionID, err := s.identity.ResolveSession(ctx, in.SessionToken)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.GetByUserCode(ctx, in.UserCode)
	if err != nil {
		return nil, err
	}
	if session.IsExpired() {
		return nil, apperrors.ErrDeviceFlowExpired()
	}
	if session.Status != models.DeviceAuthStatusPending {
		return nil, apperrors.ErrConflict("device authorization was already decided")
	}

	app, err := s.registry.GetByAppID(ctx, session.ClientID)
	if err != nil {
		return nil, err
	}

	if !in.Approve {
		session.Status = models.DeviceAuthStatusDenied
		if err := s.sessions.Update(ctx, session); err != nil {
			return nil, err
		}
		s.audit.Record(ctx, &models.AuditEvent{
			EventID:  uuid.NewString(),
			Type:     models.AuditEventConsentDenied,
			Subject:  subject,
			ClientID: session.ClientID,
			Scopes:   session.Scopes,
			Metadata: map[string]any{"flow": "device"},
		})
		return &dto.DeviceVerifyResponse{
			Status:  string(models.DeviceAuthStatusDenied),
			MiniApp: describeMiniApp(app),
		}, nil
	}

	approved := session.Scopes
	if len(in.ApprovedScopes) > 0 {
		approved = approved[:0:0]
		for _, sc := range in.ApprovedScopes {
			if utils.ContainsScope(session.Scopes, sc) {
				approved = append(approved, sc)
			}
		}
		if len(approved) == 0 {
			return nil, apperrors.ErrInvalidScope("approved scopes must be a subset of the requested scopes")
		}
	}

	session.Status = models.DeviceAuthStatusApproved
	session.Subject = subject
	session.SessionID = sessionID
	session.ApprovedScopes = approved
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	grants := make([]models.ScopeGrant, 0, len(approved))
	for _, sc := range approved {
		grants = append(grants, models.ScopeGrant{
			Subject:    subject,
			ClientID:   session.ClientID,
			Scope:      sc,
			Method:     models.GrantMethodDevice,
			ApprovedAt: now,
		})
	}
	if err := s.grants.Record(ctx, grants); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, &models.AuditEvent{
		EventID:  uuid.NewString(),
		Type:     models.AuditEventConsentGranted,
		Subject:  subject,
		ClientID: session.ClientID,
		Scopes:   approved,
		Metadata: map[string]any{"flow": "device"},
	})

	descriptors := make([]dto.ScopeDescriptor, 0, len(approved))
	for _, sc := range approved {
		descriptors = append(descriptors, dto.ScopeDescriptor{
			Scope:       sc,
			Description: scope.Describe(sc),
			Sensitivity: scope.Classify(sc),
			Note:        scope.Note(sc),
		})
	}
	return &dto.DeviceVerifyResponse{
		Status:  string(models.DeviceAuthStatusApproved),
		MiniApp: describeMiniApp(app),
		Scopes:  descriptors,
	}, nil
}

// Poll is the device's token request. It enforces the polling interval and
// reports pending/denied/expired per RFC 8628; on approval it assembles the
// token pair and closes the session.
func (s *DeviceFlowService) Poll(ctx context.Context, in dto.TokenInput) (*dto.TokenResponse, error) {
	if in.DeviceCode == "" {
		return nil, apperrors.ErrInvalidRequest("device_code is required")
	}

	session, err := s.sessions.GetByDeviceCode(ctx, in.DeviceCode)
	if err != nil {
		if apperrors.IsCode(err, constants.ErrCodeNotFound) {
			return nil, apperrors.ErrInvalidGrant("device code is invalid or expired")
		}
		return nil, err
	}
	if in.ClientID != session.ClientID {
		return nil, apperrors.ErrInvalidGrant("device code was issued to a different client")
	}
	if session.IsExpired() {
		_ = s.sessions.Delete(ctx, session.DeviceCode)
		return nil, apperrors.ErrDeviceFlowExpired()
	}

	now := s.now().UTC()
	if !session.LastPollAt.IsZero() && now.Sub(session.LastPollAt) < time.Duration(session.Interval)*time.Second {
		session.LastPollAt = now
		_ = s.sessions.Update(ctx, session)
		return nil, apperrors.ErrSlowDown()
	}
	session.LastPollAt = now

	switch session.Status {
	case models.DeviceAuthStatusPending:
		if err := s.sessions.Update(ctx, session); err != nil {
			return nil, err
		}
		return nil, apperrors.ErrAuthorizationPending()

	case models.DeviceAuthStatusDenied:
		_ = s.sessions.Delete(ctx, session.DeviceCode)
		return nil, apperrors.ErrAccessDenied()

	case models.DeviceAuthStatusApproved:
		scopes := session.ApprovedScopes
		if len(scopes) == 0 {
			scopes = session.Scopes
		}
		resp, err := s.assembler.Assemble(ctx, Grant{
			Subject:   session.Subject,
			ClientID:  session.ClientID,
			Scopes:    scopes,
			SessionID: session.SessionID,
		})
		if err != nil {
			return nil, err
		}
		// The device code is single-redemption: delete before returning.
		if err := s.sessions.Delete(ctx, session.DeviceCode); err != nil {
			s.log.Warn(ctx, "device session cleanup failed", logger.Fields{"error": err.Error()})
		}
		s.audit.Record(ctx, &models.AuditEvent{
			EventID:  uuid.NewString(),
			Type:     models.AuditEventTokenIssued,
			Subject:  session.Subject,
			ClientID: session.ClientID,
			Scopes:   scopes,
			Metadata: map[string]any{"grant_type": constants.GrantTypeDeviceCode},
		})
		return resp, nil

	default:
		return nil, apperrors.ErrServerError("device session in unknown state")
	}
}
