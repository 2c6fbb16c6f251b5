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

type authRequestStore struct {
	client *redis.Client
}

// NewAuthRequestStore creates a Redis-backed AuthRequestStore.
func NewAuthRequestStore(client *redis.Client) service.AuthRequestStore {
	return &authRequestStore{client: client}
}

func (s *authRequestStore) Save(ctx context.Context, req *models.AuthorizationRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal authorization request: %w", err)
	}
	ttl := time.Until(req.ExpiresAt)
	if ttl <= 0 {
		return apperrors.ErrInvalidRequest("authorization request already expired")
	}
	if err := s.client.Set(ctx, constants.KeyPrefixAuthRequest+req.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("store authorization request: %w", err)
	}
	return nil
}

func (s *authRequestStore) Get(ctx context.Context, id string) (*models.AuthorizationRequest, error) {
	data, err := s.client.Get(ctx, constants.KeyPrefixAuthRequest+id).Result()
	if err != nil {
		if apperrors.Is(err, redis.Nil) {
			return nil, apperrors.ErrNotFound("authorization request not found")
		}
		return nil, fmt.Errorf("get authorization request: %w", err)
	}
	return decodeAuthRequest(data)
}

func (s *authRequestStore) Consume(ctx context.Context, id string) (*models.AuthorizationRequest, error) {
	data, err := s.client.GetDel(ctx, constants.KeyPrefixAuthRequest+id).Result()
	if err != nil {
		if apperrors.Is(err, redis.Nil) {
			return nil, apperrors.ErrNotFound("authorization request not found")
		}
		return nil, fmt.Errorf("consume authorization request: %w", err)
	}
	return decodeAuthRequest(data)
}

func decodeAuthRequest(data string) (*models.AuthorizationRequest, error) {
	var req models.AuthorizationRequest
	if err := json.Unmarshal([]byte(data), &req); err != nil {
		return nil, fmt.Errorf("unmarshal authorization request: %w", err)
	}
	// TTL eviction can lag; the timestamp is authoritative.
	if req.IsExpired() {
		return nil, apperrors.ErrNotFound("authorization request expired")
	}
	return &req, nil
}
