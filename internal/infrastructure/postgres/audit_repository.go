package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/tweenim/capauth/internal/domain/models"
	"github.com/tweenim/capauth/internal/domain/service"
)

type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates the GORM-backed AuditRepository.
func NewAuditRepository(db *gorm.DB) service.AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Append(ctx context.Context, event *models.AuditEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *auditRepository) ListBySubject(ctx context.Context, subject string, limit int) ([]models.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []models.AuditEvent
	err := r.db.WithContext(ctx).
		Where("subject = ?", subject).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
