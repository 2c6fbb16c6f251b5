package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tweenim/capauth/internal/domain/models"
	"github.com/tweenim/capauth/internal/domain/service"
	"github.com/tweenim/capauth/pkg/constants"
)

type revocationLedger struct {
	client *redis.Client
	// retention must cover the longest-lived token minted before the
	// revocation, plus clock skew.
	retention time.Duration
}

// NewRevocationLedger creates a Redis-backed RevocationLedger. Entries hold
// the revocation unix timestamp under a per-(subject, client, scope) key.
func NewRevocationLedger(client *redis.Client) service.RevocationLedger {
	return &revocationLedger{
		client:    client,
		retention: constants.CapabilityTokenTTL + constants.RevocationSkew,
	}
}

func revocationKey(subject, clientID, scope string) string {
	return constants.KeyPrefixRevocation + subject + ":" + clientID + ":" + scope
}

// Record writes all entries in one transaction; the ledger is authoritative,
// so a partial write must not be observable.
func (l *revocationLedger) Record(ctx context.Context, entries []models.RevocationEntry) error {
	if len(entries) == 0 {
		return nil
	}
	pipe := l.client.TxPipeline()
	for _, e := range entries {
		key := revocationKey(e.Subject, e.ClientID, e.Scope)
		pipe.Set(ctx, key, strconv.FormatInt(e.RevokedAt.UTC().Unix(), 10), l.retention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record revocations: %w", err)
	}
	return nil
}

func (l *revocationLedger) RevokedSince(ctx context.Context, subject, clientID string, scopes []string) (map[string]time.Time, error) {
	if len(scopes) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(scopes))
	for _, s := range scopes {
		keys = append(keys, revocationKey(subject, clientID, s))
	}

	values, err := l.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read revocation ledger: %w", err)
	}

	out := make(map[string]time.Time)
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		unix, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt revocation entry for %s: %w", scopes[i], err)
		}
		out[scopes[i]] = time.Unix(unix, 0).UTC()
	}
	return out, nil
}
