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

type refreshTokenStore struct {
	client *redis.Client
}

// NewRefreshTokenStore creates a Redis-backed RefreshTokenStore. Each record
// is keyed by the opaque token; a per-(subject, client) set indexes the live
// tokens so bulk revocation never scans the keyspace.
func NewRefreshTokenStore(client *redis.Client) service.RefreshTokenStore {
	return &refreshTokenStore{client: client}
}

func indexKey(subject, clientID string) string {
	return constants.KeyPrefixRefreshIndex + subject + ":" + clientID
}

func (s *refreshTokenStore) Save(ctx context.Context, token string, rec *models.RefreshTokenRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal refresh token record: %w", err)
	}
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return apperrors.ErrInvalidRequest("refresh token already expired")
	}

	idx := indexKey(rec.Subject, rec.ClientID)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, constants.KeyPrefixRefreshToken+token, data, ttl)
	pipe.SAdd(ctx, idx, token)
	// The index outlives its longest member; stale members are dropped on
	// RevokeAll when their record key is already gone.
	pipe.Expire(ctx, idx, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// Rotate consumes the token with GETDEL. Exactly one of any number of
// concurrent calls gets the record; everyone else sees invalid_grant.
func (s *refreshTokenStore) Rotate(ctx context.Context, token string) (*models.RefreshTokenRecord, error) {
	data, err := s.client.GetDel(ctx, constants.KeyPrefixRefreshToken+token).Result()
	if err != nil {
		if apperrors.Is(err, redis.Nil) {
			return nil, apperrors.ErrInvalidGrant("refresh token is invalid, expired, or was already used")
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	var rec models.RefreshTokenRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal refresh token record: %w", err)
	}
	if rec.IsExpired() {
		return nil, apperrors.ErrInvalidGrant("refresh token expired")
	}

	if err := s.client.SRem(ctx, indexKey(rec.Subject, rec.ClientID), token).Err(); err != nil {
		return nil, fmt.Errorf("unindex refresh token: %w", err)
	}
	return &rec, nil
}

func (s *refreshTokenStore) RevokeAll(ctx context.Context, subject, clientID string) (int, error) {
	idx := indexKey(subject, clientID)
	tokens, err := s.client.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, fmt.Errorf("list refresh tokens: %w", err)
	}
	if len(tokens) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(tokens))
	for _, t := range tokens {
		keys = append(keys, constants.KeyPrefixRefreshToken+t)
	}

	pipe := s.client.TxPipeline()
	delCmd := pipe.Del(ctx, keys...)
	pipe.Del(ctx, idx)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return int(delCmd.Val()), nil
}
