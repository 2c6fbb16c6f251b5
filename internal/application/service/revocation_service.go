package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tweenim/capauth/internal/application/dto"
	"github.com/tweenim/capauth/internal/domain/models"
	domainsvc "github.com/tweenim/capauth/internal/domain/service"
	"github.com/tweenim/capauth/pkg/constants"
	apperrors "github.com/tweenim/capauth/pkg/errors"
	"github.com/tweenim/capauth/pkg/logger"
)

// RevocationService revokes granted scopes. The ledger write is the
// authoritative, synchronous part: once it succeeds the scopes are dead for
// every outstanding token. Everything downstream of the ledger — identity
// provider cleanup and mini-app webhooks — is best-effort notification.
type RevocationService struct {
	ledger      domainsvc.RevocationLedger
	grants      domainsvc.GrantStore
	refresh     domainsvc.RefreshTokenStore
	registry    domainsvc.MiniAppRegistry
	identity    domainsvc.IdentityProvider
	webhooks    domainsvc.WebhookDispatcher
	idempotency domainsvc.IdempotencyStore
	audit       *AuditTrail
	log         logger.Logger
	now         func() time.Time

	// notifyTimeout bounds the async fan-out after the caller's request
	// context is released.
	notifyTimeout time.Duration
}

// NewRevocationService wires the revocation path.
func NewRevocationService(
	ledger domainsvc.RevocationLedger,
	grants domainsvc.GrantStore,
	refresh domainsvc.RefreshTokenStore,
	registry domainsvc.MiniAppRegistry,
	identity domainsvc.IdentityProvider,
	webhooks domainsvc.WebhookDispatcher,
	idempotency domainsvc.IdempotencyStore,
	audit *AuditTrail,
	log logger.Logger,
) *RevocationService {
	return &RevocationService{
		ledger:        ledger,
		grants:        grants,
		refresh:       refresh,
		registry:      registry,
		identity:      identity,
		webhooks:      webhooks,
		idempotency:   idempotency,
		audit:         audit,
		log:           log.WithComponent("revocation"),
		now:           time.Now,
		notifyTimeout: 30 * time.Second,
	}
}

// Revoke removes the given scopes for the (subject, client) pair; an empty
// scope list revokes everything currently granted. The ledger entry, grant
// removal and refresh token invalidation complete before Revoke returns;
// notifications run in the background.
func (s *RevocationService) Revoke(ctx context.Context, in dto.RevokeInput) (*dto.RevokeResult, error) {
	scopes := in.Scopes
	if len(scopes) == 0 {
		granted, err := s.grants.GrantedScopes(ctx, in.Subject, in.ClientID)
		if err != nil {
			return nil, err
		}
		scopes = granted
	}
	if len(scopes) == 0 {
		return nil, apperrors.ErrNotFound("no grants to revoke for this pair")
	}

	revokedAt := s.now().UTC()
	entries := make([]models.RevocationEntry, 0, len(scopes))
	for _, sc := range scopes {
		entries = append(entries, models.RevocationEntry{
			Subject:   in.Subject,
			ClientID:  in.ClientID,
			Scope:     sc,
			RevokedAt: revokedAt,
			Reason:    in.Reason,
		})
	}
	// Ledger first: if this fails, nothing was revoked.
	if err := s.ledger.Record(ctx, entries); err != nil {
		return nil, err
	}

	if _, err := s.grants.Remove(ctx, in.Subject, in.ClientID, scopes); err != nil {
		s.log.Error(ctx, "grant removal failed after ledger write", err, logger.Fields{
			"subject": in.Subject,
			"client":  in.ClientID,
		})
	}

	invalidated, err := s.refresh.RevokeAll(ctx, in.Subject, in.ClientID)
	if err != nil {
		s.log.Error(ctx, "refresh token invalidation failed after ledger write", err, logger.Fields{
			"subject": in.Subject,
			"client":  in.ClientID,
		})
	}

	eventID := uuid.NewString()
	s.audit.Record(ctx, &models.AuditEvent{
		EventID:  eventID,
		Type:     models.AuditEventPermissionsRevoked,
		Subject:  in.Subject,
		ClientID: in.ClientID,
		Scopes:   scopes,
		Reason:   in.Reason,
		Metadata: map[string]any{"invalidated_tokens": invalidated},
	})

	s.notifyAsync(in.Subject, in.ClientID, scopes, revokedAt)

	return &dto.RevokeResult{
		RevokedScopes:          scopes,
		InvalidatedTokensCount: invalidated,
		RevocationEventID:      eventID,
	}, nil
}

// notifyAsync fans out best-effort notifications on a detached context so a
// slow collaborator never holds the revocation response.
func (s *RevocationService) notifyAsync(subject, clientID string, scopes []string, revokedAt time.Time) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := s.identity.NotifyRevocation(ctx, subject, clientID, scopes); err != nil {
				s.log.Warn(ctx, "identity revocation notice failed", logger.Fields{
					"client": clientID,
					"error":  err.Error(),
				})
			}
			return nil
		})
		g.Go(func() error {
			app, err := s.registry.GetByAppID(ctx, clientID)
			if err != nil {
				s.log.Warn(ctx, "webhook target lookup failed", logger.Fields{
					"client": clientID,
					"error":  err.Error(),
				})
				return nil
			}
			if err := s.webhooks.NotifyRevocation(ctx, app, subject, scopes, revokedAt); err != nil {
				s.log.Warn(ctx, "revocation webhook failed", logger.Fields{
					"client": clientID,
					"error":  err.Error(),
				})
			}
			return nil
		})
		_ = g.Wait()
	}()
}

// HandleCollaboratorWebhook processes an inbound signed webhook from a
// platform collaborator. The signature must already be verified by the
// caller. Duplicate idempotency keys acknowledge without reprocessing.
func (s *RevocationService) HandleCollaboratorWebhook(ctx context.Context, idempotencyKey string, body []byte) (*dto.WebhookAck, error) {
	if idempotencyKey != "" {
		fresh, err := s.idempotency.CheckAndSet(ctx, "webhook:"+idempotencyKey, constants.WebhookIdempotencyTTL)
		if err != nil {
			return nil, err
		}
		if !fresh {
			return &dto.WebhookAck{Received: true, Duplicate: true}, nil
		}
	}

	var event dto.CollaboratorEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, apperrors.ErrInvalidRequest("malformed webhook payload")
	}
	if event.Subject == "" {
		return nil, apperrors.ErrInvalidRequest("webhook payload missing subject")
	}

	s.audit.Record(ctx, &models.AuditEvent{
		EventID:  uuid.NewString(),
		Type:     models.AuditEventWebhookReceived,
		Subject:  event.Subject,
		ClientID: event.ClientID,
		Scopes:   event.Scopes,
		Reason:   event.Event,
	})

	switch event.Event {
	case "permissions.revoked":
		if event.ClientID == "" {
			return nil, apperrors.ErrInvalidRequest("permissions.revoked requires client_id")
		}
		res, err := s.Revoke(ctx, dto.RevokeInput{
			Subject:  event.Subject,
			ClientID: event.ClientID,
			Scopes:   event.Scopes,
			Reason:   "collaborator_webhook",
		})
		if err != nil {
			if apperrors.IsCode(err, constants.ErrCodeNotFound) {
				// Nothing granted: still acknowledged, nothing to undo.
				return &dto.WebhookAck{Received: true}, nil
			}
			return nil, err
		}
		return &dto.WebhookAck{Received: true, EventID: res.RevocationEventID}, nil

	default:
		// Unknown event types are acknowledged so the sender stops retrying.
		s.log.Info(ctx, "ignoring unhandled webhook event", logger.Fields{"event": event.Event})
		return &dto.WebhookAck{Received: true}, nil
	}
}
