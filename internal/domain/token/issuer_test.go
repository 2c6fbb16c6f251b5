package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tweenim/capauth/internal/domain/models"
	"github.com/tweenim/capauth/pkg/constants"
	"github.com/tweenim/capauth/pkg/errors"
	"github.com/tweenim/capauth/pkg/logger"
)

const testIssuer = "https://auth.test.example"

type staticKeys struct {
	kid  string
	key  *rsa.PrivateKey
	prev map[string]*rsa.PublicKey
}

func (s *staticKeys) SigningKey() (string, *rsa.PrivateKey, error) { return s.kid, s.key, nil }

func (s *staticKeys) VerificationKey(kid string) (*rsa.PublicKey, error) {
	if kid == s.kid {
		return &s.key.PublicKey, nil
	}
	if k, ok := s.prev[kid]; ok {
		return k, nil
	}
	return nil, errors.ErrNotFound("unknown kid")
}

func (s *staticKeys) PublicKeys() map[string]*rsa.PublicKey {
	out := map[string]*rsa.PublicKey{s.kid: &s.key.PublicKey}
	for kid, k := range s.prev {
		out[kid] = k
	}
	return out
}

type fakeLedger struct {
	revoked map[string]time.Time
	err     error
}

func (f *fakeLedger) Record(ctx context.Context, entries []models.RevocationEntry) error { return nil }

func (f *fakeLedger) RevokedSince(ctx context.Context, subject, clientID string, scopes []string) (map[string]time.Time, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]time.Time)
	for _, s := range scopes {
		if at, ok := f.revoked[s]; ok {
			out[s] = at
		}
	}
	return out, nil
}

func newTestIssuer(t *testing.T, ledger *fakeLedger, now func() time.Time) *Issuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	if ledger == nil {
		ledger = &fakeLedger{}
	}
	opts := []Option{}
	if now != nil {
		opts = append(opts, WithClock(now))
	}
	return NewIssuer(&staticKeys{kid: "key-1", key: key}, ledger, testIssuer, logger.NewNoopLogger(), opts...)
}

func TestMintAndVerifyRoundtrip(t *testing.T) {
	iss := newTestIssuer(t, nil, nil)
	ctx := context.Background()

	signed, minted, err := iss.Mint(ctx, MintParams{
		Subject:   "@alice:tween.im",
		ClientID:  "app-123",
		Scopes:    []string{"user:read", "wallet:balance"},
		WalletID:  "wallet-9",
		SessionID: "sess-1",
		Context:   map[string]interface{}{"room_id": "!r:tween.im"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, signed)
	assert.Equal(t, "user:read wallet:balance", minted.Scope)

	claims, err := iss.Verify(ctx, signed)
	require.NoError(t, err)
	assert.Equal(t, "@alice:tween.im", claims.Subject)
	assert.Equal(t, "app-123", claims.AudienceID())
	assert.Equal(t, string(constants.TokenTypeCapability), claims.TokenType)
	assert.Equal(t, "wallet-9", claims.WalletID)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, minted.ID, claims.ID)
	assert.True(t, claims.HasScope("wallet:balance"))
	assert.False(t, claims.HasScope("wallet:pay"))
	assert.WithinDuration(t, claims.IssuedAt.Time.Add(constants.CapabilityTokenTTL), claims.ExpiresAt.Time, time.Second)
}

func TestMintRejectsEmptyScopes(t *testing.T) {
	iss := newTestIssuer(t, nil, nil)

	_, _, err := iss.Mint(context.Background(), MintParams{
		Subject:  "@alice:tween.im",
		ClientID: "app-123",
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidScope))
}

func TestVerifyExpiredToken(t *testing.T) {
	now := time.Now()
	clock := &now
	iss := newTestIssuer(t, nil, func() time.Time { return *clock })

	signed, _, err := iss.Mint(context.Background(), MintParams{
		Subject: "@alice:tween.im", ClientID: "app-123", Scopes: []string{"user:read"},
	})
	require.NoError(t, err)

	later := now.Add(constants.CapabilityTokenTTL + time.Minute)
	clock = &later

	_, err = iss.Verify(context.Background(), signed)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, constants.ErrCodeTokenExpired))
	assert.True(t, errors.IsVerificationKind(err))
}

func TestVerifyRejectsForeignIssuer(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keys := &staticKeys{kid: "key-1", key: key}
	ours := NewIssuer(keys, &fakeLedger{}, testIssuer, logger.NewNoopLogger())
	theirs := NewIssuer(keys, &fakeLedger{}, "https://other.example", logger.NewNoopLogger())

	signed, _, err := theirs.Mint(context.Background(), MintParams{
		Subject: "@alice:tween.im", ClientID: "app-123", Scopes: []string{"user:read"},
	})
	require.NoError(t, err)

	_, err = ours.Verify(context.Background(), signed)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, constants.ErrCodeIssuerMismatch))
}

func TestVerifyRejectsWrongSigningKey(t *testing.T) {
	iss := newTestIssuer(t, nil, nil)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	forged := jwt.NewWithClaims(jwt.SigningMethodRS256, &models.CapabilityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "@mallory:tween.im",
			Audience:  jwt.ClaimStrings{"app-123"},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TokenType: string(constants.TokenTypeCapability),
		Scope:     "wallet:pay",
	})
	forged.Header["kid"] = "key-1"
	signed, err := forged.SignedString(otherKey)
	require.NoError(t, err)

	_, err = iss.Verify(context.Background(), signed)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, constants.ErrCodeBadSignature))
}

func TestVerifyRejectsNonRS256(t *testing.T) {
	iss := newTestIssuer(t, nil, nil)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.CapabilityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "@alice:tween.im",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TokenType: string(constants.TokenTypeCapability),
		Scope:     "user:read",
	})
	tok.Header["kid"] = "key-1"
	signed, err := tok.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = iss.Verify(context.Background(), signed)
	require.Error(t, err)
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	iss := NewIssuer(&staticKeys{kid: "key-1", key: key}, &fakeLedger{}, testIssuer, logger.NewNoopLogger())

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, &models.CapabilityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "@alice:tween.im",
			Audience:  jwt.ClaimStrings{"app-123"},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TokenType: "id_token",
		Scope:     "user:read",
	})
	tok.Header["kid"] = "key-1"
	signed, err := tok.SignedString(key)
	require.NoError(t, err)

	_, err = iss.Verify(context.Background(), signed)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, constants.ErrCodeWrongTokenType))
}

func TestVerifyRejectsMissingKid(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	iss := NewIssuer(&staticKeys{kid: "key-1", key: key}, &fakeLedger{}, testIssuer, logger.NewNoopLogger())

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, &models.CapabilityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TokenType: string(constants.TokenTypeCapability),
		Scope:     "user:read",
	})
	signed, err := tok.SignedString(key)
	require.NoError(t, err)

	_, err = iss.Verify(context.Background(), signed)
	require.Error(t, err)
}

func TestVerifyPartialRevocationKeepsSurvivingScopes(t *testing.T) {
	ledger := &fakeLedger{revoked: map[string]time.Time{}}
	iss := newTestIssuer(t, ledger, nil)
	ctx := context.Background()

	signed, minted, err := iss.Mint(ctx, MintParams{
		Subject:  "@alice:tween.im",
		ClientID: "app-123",
		Scopes:   []string{"user:read", "wallet:pay", "storage:read"},
	})
	require.NoError(t, err)

	// Revoke wallet:pay after issuance: the token keeps its other scopes.
	ledger.revoked["wallet:pay"] = minted.IssuedAt.Time.Add(time.Minute)

	claims, err := iss.Verify(ctx, signed)
	require.NoError(t, err)
	assert.Equal(t, "user:read storage:read", claims.Scope)
	assert.False(t, claims.HasScope("wallet:pay"))
}

func TestVerifyAllScopesRevoked(t *testing.T) {
	ledger := &fakeLedger{revoked: map[string]time.Time{}}
	iss := newTestIssuer(t, ledger, nil)
	ctx := context.Background()

	signed, minted, err := iss.Mint(ctx, MintParams{
		Subject:  "@alice:tween.im",
		ClientID: "app-123",
		Scopes:   []string{"user:read", "wallet:pay"},
	})
	require.NoError(t, err)

	at := minted.IssuedAt.Time.Add(time.Minute)
	ledger.revoked["user:read"] = at
	ledger.revoked["wallet:pay"] = at

	_, err = iss.Verify(ctx, signed)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, constants.ErrCodeTokenRevoked))
}

func TestVerifyRevocationBeforeIssuanceIgnored(t *testing.T) {
	ledger := &fakeLedger{revoked: map[string]time.Time{}}
	iss := newTestIssuer(t, ledger, nil)
	ctx := context.Background()

	signed, minted, err := iss.Mint(ctx, MintParams{
		Subject:  "@alice:tween.im",
		ClientID: "app-123",
		Scopes:   []string{"wallet:balance"},
	})
	require.NoError(t, err)

	// A revocation strictly before iat targets older tokens only: re-granted
	// consent mints fresh tokens that must stay valid.
	ledger.revoked["wallet:balance"] = minted.IssuedAt.Time.Add(-time.Minute)

	claims, err := iss.Verify(ctx, signed)
	require.NoError(t, err)
	assert.True(t, claims.HasScope("wallet:balance"))
}

func TestVerifyFailsClosedOnLedgerError(t *testing.T) {
	ledger := &fakeLedger{err: errors.ErrServerError("redis down")}
	iss := newTestIssuer(t, nil, nil)
	signed, _, err := iss.Mint(context.Background(), MintParams{
		Subject: "@alice:tween.im", ClientID: "app-123", Scopes: []string{"user:read"},
	})
	require.NoError(t, err)

	iss.ledger = ledger
	_, err = iss.Verify(context.Background(), signed)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, constants.ErrCodeServerError))
}

func TestVerifyPreviousKeyStillResolves(t *testing.T) {
	oldKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	newKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	oldKeys := &staticKeys{kid: "key-1", key: oldKey}
	signedWithOld, _, err := NewIssuer(oldKeys, &fakeLedger{}, testIssuer, logger.NewNoopLogger()).
		Mint(context.Background(), MintParams{
			Subject: "@alice:tween.im", ClientID: "app-123", Scopes: []string{"user:read"},
		})
	require.NoError(t, err)

	rotated := &staticKeys{
		kid:  "key-2",
		key:  newKey,
		prev: map[string]*rsa.PublicKey{"key-1": &oldKey.PublicKey},
	}
	iss := NewIssuer(rotated, &fakeLedger{}, testIssuer, logger.NewNoopLogger())

	claims, err := iss.Verify(context.Background(), signedWithOld)
	require.NoError(t, err)
	assert.Equal(t, "@alice:tween.im", claims.Subject)
}
