// Package token mints and verifies capability access tokens. Tokens are
// RS256-signed JWTs carrying the capability claim set; they are
// self-contained and never persisted. Verification consults the revocation
// ledger so a revoked scope dies before the token's own expiry.
package token

import (
	"context"
	"crypto/rsa"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tweenim/capauth/internal/domain/models"
	"github.com/tweenim/capauth/internal/domain/service"
	"github.com/tweenim/capauth/pkg/constants"
	"github.com/tweenim/capauth/pkg/errors"
	"github.com/tweenim/capauth/pkg/logger"
	"github.com/tweenim/capauth/pkg/utils"
)

// KeyManager provides the signing key and resolves verification keys by kid.
// Rotation keeps previous public keys resolvable until every token signed
// with them has expired.
type KeyManager interface {
	// SigningKey returns the active key id and private key.
	SigningKey() (kid string, key *rsa.PrivateKey, err error)

	// VerificationKey resolves the public key for a kid.
	VerificationKey(kid string) (*rsa.PublicKey, error)

	// PublicKeys returns every currently resolvable public key by kid, for
	// the JWKS endpoint.
	PublicKeys() map[string]*rsa.PublicKey
}

// MintParams carries everything a capability token is minted from.
type MintParams struct {
	Subject   string
	ClientID  string
	Scopes    []string
	WalletID  string
	SessionID string
	Context   map[string]interface{}
}

// Issuer mints and verifies capability tokens.
type Issuer struct {
	keys   KeyManager
	ledger service.RevocationLedger
	issuer string
	ttl    time.Duration
	log    logger.Logger
	now    func() time.Time
}

// Option customizes an Issuer.
type Option func(*Issuer)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// WithTTL overrides the token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) { i.ttl = ttl }
}

// NewIssuer builds an Issuer bound to one issuer identity.
func NewIssuer(keys KeyManager, ledger service.RevocationLedger, issuer string, log logger.Logger, opts ...Option) *Issuer {
	iss := &Issuer{
		keys:   keys,
		ledger: ledger,
		issuer: issuer,
		ttl:    constants.CapabilityTokenTTL,
		log:    log.WithComponent("token_issuer"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(iss)
	}
	return iss
}

// TTL returns the configured token lifetime.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Mint signs a capability token for the given grant. An empty scope set is
// rejected: a token that grants nothing must not exist.
func (i *Issuer) Mint(ctx context.Context, p MintParams) (string, *models.CapabilityClaims, error) {
	if len(p.Scopes) == 0 {
		return "", nil, errors.ErrInvalidScope("cannot mint a token with an empty scope set")
	}
	if p.Subject == "" || p.ClientID == "" {
		return "", nil, errors.ErrInvalidRequest("subject and client are required to mint a token")
	}

	now := i.now().UTC()
	claims := &models.CapabilityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   p.Subject,
			Audience:  jwt.ClaimStrings{p.ClientID},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
		TokenType: string(constants.TokenTypeCapability),
		Scope:     utils.JoinScopes(p.Scopes),
		WalletID:  p.WalletID,
		SessionID: p.SessionID,
		Context:   p.Context,
	}

	kid, key, err := i.keys.SigningKey()
	if err != nil {
		return "", nil, errors.ErrServerError("signing key unavailable").WithCause(err)
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid

	signed, err := tok.SignedString(key)
	if err != nil {
		return "", nil, errors.ErrServerError("token signing failed").WithCause(err)
	}

	i.log.Debug(ctx, "minted capability token", logger.Fields{
		"jti":    claims.ID,
		"client": p.ClientID,
		"scopes": claims.Scope,
	})
	return signed, claims, nil
}

// Verify parses and validates a capability token, then filters its scope set
// against the revocation ledger. A scope is dropped when a revocation for the
// (subject, client, scope) triple is recorded at or after the token's iat;
// the remaining scopes stay usable. A token whose every scope is revoked
// fails verification outright.
//
// The returned claims carry the surviving scope set; callers must authorize
// against it, not against the original token string.
func (i *Issuer) Verify(ctx context.Context, tokenString string) (*models.CapabilityClaims, error) {
	claims := &models.CapabilityClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, i.keyfunc,
		jwt.WithValidMethods([]string{string(constants.AlgorithmRS256)}),
		jwt.WithIssuer(i.issuer),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, mapParseError(err)
	}

	if claims.TokenType != string(constants.TokenTypeCapability) {
		return nil, errors.ErrWrongTokenType()
	}

	scopes := claims.Scopes()
	if len(scopes) == 0 {
		return nil, errors.ErrInvalidToken()
	}

	revoked, err := i.ledger.RevokedSince(ctx, claims.Subject, claims.AudienceID(), scopes)
	if err != nil {
		// Fail closed: without the ledger we cannot attest the token.
		return nil, errors.ErrServerError("revocation check failed").WithCause(err)
	}
	if len(revoked) > 0 {
		issuedAt := claims.IssuedAt.Time
		surviving := scopes[:0:0]
		for _, s := range scopes {
			if at, ok := revoked[s]; ok && !at.Before(issuedAt) {
				continue
			}
			surviving = append(surviving, s)
		}
		if len(surviving) == 0 {
			return nil, errors.ErrTokenRevoked()
		}
		claims.Scope = utils.JoinScopes(surviving)
	}

	return claims, nil
}

// keyfunc resolves the verification key from the kid header. Tokens without
// a kid are rejected.
func (i *Issuer) keyfunc(t *jwt.Token) (interface{}, error) {
	kid, ok := t.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, errors.ErrBadSignature().WithMetadata("reason", "missing kid header")
	}
	key, err := i.keys.VerificationKey(kid)
	if err != nil {
		return nil, errors.ErrBadSignature().WithCause(err)
	}
	return key, nil
}

// mapParseError translates jwt parse failures into internal verification
// kinds. These stay distinguishable for logs; the HTTP layer collapses them.
func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return errors.ErrTokenExpired()
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return errors.ErrTokenNotYetValid()
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return errors.ErrIssuerMismatch()
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return errors.ErrBadSignature().WithCause(err)
	default:
		if appErr, ok := errors.As(err); ok {
			return appErr
		}
		return errors.ErrInvalidToken().WithCause(err)
	}
}
