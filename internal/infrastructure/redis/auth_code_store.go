package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tweenim/capauth/internal/domain/models"
	"github.com/tweenim/capauth/internal/domain/service"
	"github.com/tweenim/capauth/pkg/constants"
	apperrors "github.com/tweenim/capauth/pkg/errors"
)

type authCodeStore struct {
	client *redis.Client
}

// NewAuthCodeStore creates a Redis-backed AuthCodeStore.
func NewAuthCodeStore(client *redis.Client) service.AuthCodeStore {
	return &authCodeStore{client: client}
}

func (s *authCodeStore) Save(ctx context.Context, code string, ac *models.AuthorizationCode) error {
	data, err := json.Marshal(ac)
	if err != nil {
		return fmt.Errorf("marshal authorization code: %w", err)
	}
	ttl := time.Until(ac.ExpiresAt)
	if ttl <= 0 {
		return apperrors.ErrInvalidRequest("authorization code already expired")
	}
	if err := s.client.Set(ctx, constants.KeyPrefixAuthCode+code, data, ttl).Err(); err != nil {
		return fmt.Errorf("store authorization code: %w", err)
	}
	return nil
}

// Consume redeems the code with GETDEL so two concurrent exchanges can never
// both succeed.
func (s *authCodeStore) Consume(ctx context.Context, code string) (*models.AuthorizationCode, error) {
	data, err := s.client.GetDel(ctx, constants.KeyPrefixAuthCode+code).Result()
	if err != nil {
		if apperrors.Is(err, redis.Nil) {
			return nil, apperrors.ErrInvalidGrant("authorization code is invalid or was already used")
		}
		return nil, fmt.Errorf("consume authorization code: %w", err)
	}

	var ac models.AuthorizationCode
	if err := json.Unmarshal([]byte(data), &ac); err != nil {
		return nil, fmt.Errorf("unmarshal authorization code: %w", err)
	}
	if ac.IsExpired() {
		return nil, apperrors.ErrInvalidGrant("authorization code expired")
	}
	return &ac, nil
}
