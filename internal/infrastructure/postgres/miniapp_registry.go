package postgres

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/tweenim/capauth/internal/domain/models"
	"github.com/tweenim/capauth/internal/domain/service"
	apperrors "github.com/tweenim/capauth/pkg/errors"
)

const (
	registryCacheTTL     = 30 * time.Second
	registryCacheCleanup = 5 * time.Minute
)

type miniAppRegistry struct {
	db    *gorm.DB
	cache *cache.Cache
	group singleflight.Group
}

// NewMiniAppRegistry creates the GORM-backed MiniAppRegistry. Lookups are
// served from a short-lived cache; concurrent misses for the same app are
// collapsed into one query.
func NewMiniAppRegistry(db *gorm.DB) service.MiniAppRegistry {
	return &miniAppRegistry{
		db:    db,
		cache: cache.New(registryCacheTTL, registryCacheCleanup),
	}
}

func (r *miniAppRegistry) GetByAppID(ctx context.Context, appID string) (*models.MiniApp, error) {
	if cached, ok := r.cache.Get(appID); ok {
		return cached.(*models.MiniApp), nil
	}

	v, err, _ := r.group.Do(appID, func() (interface{}, error) {
		var app models.MiniApp
		err := r.db.WithContext(ctx).Where("app_id = ?", appID).First(&app).Error
		if err != nil {
			if apperrors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.ErrInvalidClient("unknown mini-app " + appID)
			}
			return nil, err
		}
		r.cache.Set(appID, &app, cache.DefaultExpiration)
		return &app, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.MiniApp), nil
}
