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

type deviceAuthStore struct {
	client *redis.Client
}

// NewDeviceAuthStore creates a Redis-backed DeviceAuthStore. Sessions are
// stored under the device code with a user-code secondary index, so user
// lookups never scan the keyspace.
func NewDeviceAuthStore(client *redis.Client) service.DeviceAuthStore {
	return &deviceAuthStore{client: client}
}

func (s *deviceAuthStore) Save(ctx context.Context, session *models.DeviceAuthSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal device auth session: %w", err)
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return apperrors.ErrInvalidRequest("device auth session already expired")
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, constants.KeyPrefixDeviceCode+session.DeviceCode, data, ttl)
	pipe.Set(ctx, constants.KeyPrefixUserCode+session.UserCode, session.DeviceCode, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store device auth session: %w", err)
	}
	return nil
}

func (s *deviceAuthStore) GetByDeviceCode(ctx context.Context, deviceCode string) (*models.DeviceAuthSession, error) {
	data, err := s.client.Get(ctx, constants.KeyPrefixDeviceCode+deviceCode).Result()
	if err != nil {
		if apperrors.Is(err, redis.Nil) {
			return nil, apperrors.ErrNotFound("device auth session not found")
		}
		return nil, fmt.Errorf("get device auth session: %w", err)
	}

	var session models.DeviceAuthSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("unmarshal device auth session: %w", err)
	}
	return &session, nil
}

func (s *deviceAuthStore) GetByUserCode(ctx context.Context, userCode string) (*models.DeviceAuthSession, error) {
	deviceCode, err := s.client.Get(ctx, constants.KeyPrefixUserCode+userCode).Result()
	if err != nil {
		if apperrors.Is(err, redis.Nil) {
			return nil, apperrors.ErrNotFound("user code not found")
		}
		return nil, fmt.Errorf("resolve user code: %w", err)
	}
	return s.GetByDeviceCode(ctx, deviceCode)
}

// Update rewrites the session under its remaining TTL. The session TTL is
// fixed at creation; status changes and poll timestamps never extend it.
func (s *deviceAuthStore) Update(ctx context.Context, session *models.DeviceAuthSession) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return apperrors.ErrDeviceFlowExpired()
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal device auth session: %w", err)
	}
	if err := s.client.Set(ctx, constants.KeyPrefixDeviceCode+session.DeviceCode, data, ttl).Err(); err != nil {
		return fmt.Errorf("update device auth session: %w", err)
	}
	return nil
}

func (s *deviceAuthStore) Delete(ctx context.Context, deviceCode string) error {
	session, err := s.GetByDeviceCode(ctx, deviceCode)
	if err != nil {
		if apperrors.IsCode(err, constants.ErrCodeNotFound) {
			return nil
		}
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, constants.KeyPrefixDeviceCode+deviceCode)
	pipe.Del(ctx, constants.KeyPrefixUserCode+session.UserCode)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete device auth session: %w", err)
	}
	return nil
}
