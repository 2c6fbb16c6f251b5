package postgres

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tweenim/capauth/internal/domain/models"
	"github.com/tweenim/capauth/internal/domain/service"
)

type grantStore struct {
	db *gorm.DB
}

// NewGrantStore creates the GORM-backed GrantStore.
func NewGrantStore(db *gorm.DB) service.GrantStore {
	return &grantStore{db: db}
}

func (s *grantStore) Record(ctx context.Context, grants []models.ScopeGrant) error {
	if len(grants) == 0 {
		return nil
	}
	// Re-approving an existing grant refreshes its timestamp.
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subject"}, {Name: "client_id"}, {Name: "scope"}},
		DoUpdates: clause.AssignmentColumns([]string{"method", "approved_at"}),
	}).Create(&grants).Error
}

func (s *grantStore) GrantedScopes(ctx context.Context, subject, clientID string) ([]string, error) {
	var scopes []string
	err := s.db.WithContext(ctx).
		Model(&models.ScopeGrant{}).
		Where("subject = ? AND client_id = ?", subject, clientID).
		Order("approved_at").
		Pluck("scope", &scopes).Error
	if err != nil {
		return nil, err
	}
	return scopes, nil
}

func (s *grantStore) Remove(ctx context.Context, subject, clientID string, scopes []string) (int, error) {
	q := s.db.WithContext(ctx).
		Where("subject = ? AND client_id = ?", subject, clientID)
	if len(scopes) > 0 {
		q = q.Where("scope IN ?", scopes)
	}
	res := q.Delete(&models.ScopeGrant{})
	return int(res.RowsAffected), res.Error
}
