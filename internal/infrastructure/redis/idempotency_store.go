package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tweenim/capauth/internal/domain/service"
	"github.com/tweenim/capauth/pkg/constants"
	apperrors "github.com/tweenim/capauth/pkg/errors"
)

type idempotencyStore struct {
	client *redis.Client
}

// NewIdempotencyStore creates a Redis-backed IdempotencyStore.
func NewIdempotencyStore(client *redis.Client) service.IdempotencyStore {
	return &idempotencyStore{client: client}
}

type storedResponse struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

// CheckAndSet claims the key with SETNX; exactly one concurrent caller wins.
func (s *idempotencyStore) CheckAndSet(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	fresh, err := s.client.SetNX(ctx, constants.KeyPrefixIdempotency+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim idempotency key: %w", err)
	}
	return fresh, nil
}

func (s *idempotencyStore) StoreResponse(ctx context.Context, key string, status int, body []byte, ttl time.Duration) error {
	data, err := json.Marshal(storedResponse{Status: status, Body: body})
	if err != nil {
		return fmt.Errorf("marshal idempotent response: %w", err)
	}
	if err := s.client.Set(ctx, constants.KeyPrefixIdempotency+key+":resp", data, ttl).Err(); err != nil {
		return fmt.Errorf("store idempotent response: %w", err)
	}
	return nil
}

func (s *idempotencyStore) GetResponse(ctx context.Context, key string) (int, []byte, error) {
	data, err := s.client.Get(ctx, constants.KeyPrefixIdempotency+key+":resp").Result()
	if err != nil {
		if apperrors.Is(err, redis.Nil) {
			return 0, nil, apperrors.ErrNotFound("no stored response for idempotency key")
		}
		return 0, nil, fmt.Errorf("get idempotent response: %w", err)
	}
	var resp storedResponse
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		return 0, nil, fmt.Errorf("unmarshal idempotent response: %w", err)
	}
	return resp.Status, resp.Body, nil
}
