package service

import (
	"context"
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

// AuthFlowService drives the OAuth 2.0 authorization-code flow with PKCE:
// authorize, consent, and the token endpoint grants.
type AuthFlowService struct {
	registry  domainsvc.MiniAppRegistry
	requests  domainsvc.AuthRequestStore
	codes     domainsvc.AuthCodeStore
	grants    domainsvc.GrantStore
	refresh   domainsvc.RefreshTokenStore
	identity  domainsvc.IdentityProvider
	assembler *TokenAssembler
	audit     *AuditTrail
	log       logger.Logger
	now       func() time.Time
}

// NewAuthFlowService wires the authorization-code flow.
func NewAuthFlowService(
	registry domainsvc.MiniAppRegistry,
	requests domainsvc.AuthRequestStore,
	codes domainsvc.AuthCodeStore,
	grants domainsvc.GrantStore,
	refresh domainsvc.RefreshTokenStore,
	identity domainsvc.IdentityProvider,
	assembler *TokenAssembler,
	audit *AuditTrail,
	log logger.Logger,
) *AuthFlowService {
	return &AuthFlowService{
		registry:  registry,
		requests:  requests,
		codes:     codes,
		grants:    grants,
		refresh:   refresh,
		identity:  identity,
		assembler: assembler,
		audit:     audit,
		log:       log.WithComponent("auth_flow"),
		now:       time.Now,
	}
}

// Authorize validates an incoming authorization request, stores it, and
// returns the consent descriptor for the approval screen. Any requested
// scope outside the client's registered manifest fails the whole request:
// the escalation guard is never advisory.
func (s *AuthFlowService) Authorize(ctx context.Context, in dto.AuthorizeInput) (*dto.ConsentDescriptor, error) {
	if in.ResponseType != constants.ResponseTypeCode {
		return nil, apperrors.ErrUnsupportedResponseType()
	}
	if in.ClientID == "" || in.RedirectURI == "" {
		return nil, apperrors.ErrInvalidRequest("client_id and redirect_uri are required")
	}
	if in.State == "" {
		return nil, apperrors.ErrInvalidRequest("state is required")
	}
	if in.CodeChallenge == "" {
		return nil, apperrors.ErrInvalidRequest("code_challenge is required; PKCE is mandatory")
	}
	if in.CodeChallengeMethod != constants.CodeChallengeMethodS256 {
		return nil, apperrors.ErrInvalidRequest("only the S256 code_challenge_method is supported")
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
	if !app.AllowsRedirect(in.RedirectURI) {
		// Never redirect to an unregistered URI, not even with an error.
		return nil, apperrors.ErrInvalidRequest("redirect_uri is not registered for this mini-app")
	}

	result := scope.Validate(scopes, app.RegisteredScopes)
	if result.Denies() {
		denied := make([]string, 0, len(result.Denied))
		for _, d := range result.Denied {
			denied = append(denied, d.Scope)
		}
		s.log.Warn(ctx, "scope escalation attempt rejected", logger.Fields{
			"client": in.ClientID,
			"denied": denied,
		})
		return nil, apperrors.ErrScopeEscalation("requested scopes not registered: " + utils.JoinScopes(denied))
	}

	now := s.now().UTC()
	req := &models.AuthorizationRequest{
		ID:                  uuid.NewString(),
		ClientID:            in.ClientID,
		RedirectURI:         in.RedirectURI,
		Scopes:              scopes,
		State:               in.State,
		CodeChallenge:       in.CodeChallenge,
		CodeChallengeMethod: in.CodeChallengeMethod,
		MiniAppName:         app.Name,
		MiniAppIcon:         app.IconURL,
		CreatedAt:           now,
		ExpiresAt:           now.Add(constants.AuthRequestTTL),
	}
	if err := s.requests.Save(ctx, req); err != nil {
		return nil, err
	}

	return &dto.ConsentDescriptor{
		RequestID: req.ID,
		MiniApp:   describeMiniApp(app),
		Scopes:    s.describeScopes(ctx, scopes, "", in.ClientID),
		State:     in.State,
		ExpiresIn: int(constants.ConsentDescriptorTTL / time.Second),
	}, nil
}

// DescribeForSubject rebuilds the consent descriptor once the user is known,
// so previously granted scopes render as pre-approved. Critical scopes are
// always shown as requiring consent.
func (s *AuthFlowService) DescribeForSubject(ctx context.Context, requestID, subject string) (*dto.ConsentDescriptor, error) {
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	app, err := s.registry.GetByAppID(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	return &dto.ConsentDescriptor{
		RequestID: req.ID,
		MiniApp:   describeMiniApp(app),
		Scopes:    s.describeScopes(ctx, req.Scopes, subject, req.ClientID),
		State:     req.State,
		ExpiresIn: int(time.Until(req.ExpiresAt) / time.Second),
	}, nil
}

// Consent applies the user's decision to a pending request. The request is
// consumed either way; a second decision for the same request finds nothing.
func (s *AuthFlowService) Consent(ctx context.Context, in dto.ConsentInput) (*dto.ConsentResult, error) {
	subject, sessionID, err := s.identity.ResolveSession(ctx, in.SessionToken)
	if err != nil {
		return nil, err
	}

	req, err := s.requests.Consume(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}

	if !in.Approve {
		s.audit.Record(ctx, &models.AuditEvent{
			EventID:  uuid.NewString(),
			Type:     models.AuditEventConsentDenied,
			Subject:  subject,
			ClientID: req.ClientID,
			Scopes:   req.Scopes,
		})
		return &dto.ConsentResult{
			RedirectURI: req.RedirectURI,
			State:       req.State,
			Error:       string(constants.ErrCodeAccessDenied),
		}, nil
	}

	granted := req.Scopes
	if len(in.ApprovedScopes) > 0 {
		// The user may approve a subset, never a superset.
		granted = granted[:0:0]
		for _, sc := range in.ApprovedScopes {
			if utils.ContainsScope(req.Scopes, sc) {
				granted = append(granted, sc)
			}
		}
		if len(granted) == 0 {
			return nil, apperrors.ErrInvalidScope("approved scopes must be a subset of the requested scopes")
		}
	}

	code, err := utils.GenerateSecureRandomString(constants.AuthCodeBytes)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	err = s.codes.Save(ctx, code, &models.AuthorizationCode{
		ClientID:      req.ClientID,
		RedirectURI:   req.RedirectURI,
		Scopes:        granted,
		State:         req.State,
		CodeChallenge: req.CodeChallenge,
		Subject:       subject,
		SessionID:     sessionID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(constants.AuthCodeTTL),
	})
	if err != nil {
		return nil, err
	}

	if err := s.recordGrants(ctx, subject, req.ClientID, granted, models.GrantMethodConsent); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, &models.AuditEvent{
		EventID:  uuid.NewString(),
		Type:     models.AuditEventConsentGranted,
		Subject:  subject,
		ClientID: req.ClientID,
		Scopes:   granted,
	})

	return &dto.ConsentResult{
		RedirectURI: req.RedirectURI,
		Code:        code,
		State:       req.State,
	}, nil
}

// ExchangeCode redeems an authorization code for a token pair. The PKCE
// verifier must match the stored challenge; a mismatch burns the code.
func (s *AuthFlowService) ExchangeCode(ctx context.Context, in dto.TokenInput) (*dto.TokenResponse, error) {
	if in.Code == "" || in.CodeVerifier == "" {
		return nil, apperrors.ErrInvalidRequest("code and code_verifier are required")
	}

	ac, err := s.codes.Consume(ctx, in.Code)
	if err != nil {
		return nil, err
	}
	if ac.ClientID != in.ClientID {
		return nil, apperrors.ErrInvalidGrant("authorization code was issued to a different client")
	}
	if ac.RedirectURI != in.RedirectURI {
		return nil, apperrors.ErrInvalidGrant("redirect_uri does not match the authorization request")
	}
	if !utils.VerifyPKCES256(in.CodeVerifier, ac.CodeChallenge) {
		return nil, apperrors.ErrInvalidGrant("PKCE verification failed")
	}

	resp, err := s.assembler.Assemble(ctx, Grant{
		Subject:   ac.Subject,
		ClientID:  ac.ClientID,
		Scopes:    ac.Scopes,
		SessionID: ac.SessionID,
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, &models.AuditEvent{
		EventID:  uuid.NewString(),
		Type:     models.AuditEventTokenIssued,
		Subject:  ac.Subject,
		ClientID: ac.ClientID,
		Scopes:   ac.Scopes,
		Metadata: map[string]any{"grant_type": constants.GrantTypeAuthorizationCode},
	})
	return resp, nil
}

// Refresh rotates a refresh token into a fresh token pair. The old token is
// consumed exactly once; the new pair carries the original scope set.
func (s *AuthFlowService) Refresh(ctx context.Context, in dto.TokenInput) (*dto.TokenResponse, error) {
	if in.RefreshToken == "" {
		return nil, apperrors.ErrInvalidRequest("refresh_token is required")
	}

	rec, err := s.refresh.Rotate(ctx, in.RefreshToken)
	if err != nil {
		return nil, err
	}
	if in.ClientID != "" && rec.ClientID != in.ClientID {
		return nil, apperrors.ErrInvalidGrant("refresh token was issued to a different client")
	}

	resp, err := s.assembler.Assemble(ctx, Grant{
		Subject:   rec.Subject,
		ClientID:  rec.ClientID,
		Scopes:    rec.Scopes,
		SessionID: rec.SessionID,
		WalletID:  rec.WalletID,
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, &models.AuditEvent{
		EventID:  uuid.NewString(),
		Type:     models.AuditEventTokenRefreshed,
		Subject:  rec.Subject,
		ClientID: rec.ClientID,
		Scopes:   rec.Scopes,
	})
	return resp, nil
}

func (s *AuthFlowService) recordGrants(ctx context.Context, subject, clientID string, scopes []string, method models.GrantMethod) error {
	now := s.now().UTC()
	grants := make([]models.ScopeGrant, 0, len(scopes))
	for _, sc := range scopes {
		grants = append(grants, models.ScopeGrant{
			Subject:    subject,
			ClientID:   clientID,
			Scope:      sc,
			Method:     method,
			ApprovedAt: now,
		})
	}
	return s.grants.Record(ctx, grants)
}

// describeScopes builds the per-scope consent entries. With a known subject,
// stored grants mark non-critical scopes as not needing fresh consent.
func (s *AuthFlowService) describeScopes(ctx context.Context, scopes []string, subject, clientID string) []dto.ScopeDescriptor {
	var granted []string
	if subject != "" {
		if g, err := s.grants.GrantedScopes(ctx, subject, clientID); err == nil {
			granted = g
		}
	}

	out := make([]dto.ScopeDescriptor, 0, len(scopes))
	for _, sc := range scopes {
		requires := scope.IsSensitive(sc)
		if requires && !scope.IsCritical(sc) && utils.ContainsScope(granted, sc) {
			requires = false
		}
		out = append(out, dto.ScopeDescriptor{
			Scope:           sc,
			Description:     scope.Describe(sc),
			Sensitivity:     scope.Classify(sc),
			Note:            scope.Note(sc),
			RequiresConsent: requires,
		})
	}
	return out
}

func describeMiniApp(app *models.MiniApp) dto.MiniAppDescriptor {
	return dto.MiniAppDescriptor{
		AppID:         app.AppID,
		Name:          app.Name,
		DeveloperName: app.DeveloperName,
		IconURL:       app.IconURL,
		Verified:      app.IsVerified(),
	}
}
