package service

import (
	"context"

	"github.com/tweenim/capauth/internal/domain/models"
	domainsvc "github.com/tweenim/capauth/internal/domain/service"
	"github.com/tweenim/capauth/pkg/logger"
)

// AuditTrail writes audit events. The local table write is synchronous but
// non-fatal to the calling flow; publishing to the event bus is best-effort.
type AuditTrail struct {
	repo      domainsvc.AuditRepository
	publisher domainsvc.AuditPublisher
	log       logger.Logger
}

// NewAuditTrail wires the audit sink pair.
func NewAuditTrail(repo domainsvc.AuditRepository, publisher domainsvc.AuditPublisher, log logger.Logger) *AuditTrail {
	return &AuditTrail{
		repo:      repo,
		publisher: publisher,
		log:       log.WithComponent("audit"),
	}
}

// Record persists the event and publishes it. Failures are logged, never
// surfaced: an audit outage must not block authorization flows.
func (a *AuditTrail) Record(ctx context.Context, event *models.AuditEvent) {
	if err := a.repo.Append(ctx, event); err != nil {
		a.log.Error(ctx, "audit append failed", err, logger.Fields{
			"event_id": event.EventID,
			"type":     event.Type,
		})
	}
	if err := a.publisher.Publish(ctx, event); err != nil {
		a.log.Warn(ctx, "audit publish failed", logger.Fields{
			"event_id": event.EventID,
			"type":     event.Type,
			"error":    err.Error(),
		})
	}
}
