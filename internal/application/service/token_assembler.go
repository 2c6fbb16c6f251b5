// Package service holds the application services that drive the
// authorization flows: request validation, consent, token assembly, device
// flow and revocation.
package service

import (
	"context"
	"time"

	"github.com/tweenim/capauth/internal/application/dto"
	"github.com/tweenim/capauth/internal/domain/models"
	domainsvc "github.com/tweenim/capauth/internal/domain/service"
	"github.com/tweenim/capauth/internal/domain/token"
	"github.com/tweenim/capauth/pkg/constants"
	"github.com/tweenim/capauth/pkg/logger"
	"github.com/tweenim/capauth/pkg/utils"
)

// TokenAssembler turns an approved grant into the token endpoint response:
// it resolves the wallet reference when wallet scopes are present, mints the
// capability access token and pairs it with a fresh refresh token.
type TokenAssembler struct {
	issuer  *token.Issuer
	refresh domainsvc.RefreshTokenStore
	wallet  domainsvc.WalletService
	log     logger.Logger
	now     func() time.Time
}

// NewTokenAssembler wires the assembler.
func NewTokenAssembler(issuer *token.Issuer, refresh domainsvc.RefreshTokenStore, wallet domainsvc.WalletService, log logger.Logger) *TokenAssembler {
	return &TokenAssembler{
		issuer:  issuer,
		refresh: refresh,
		wallet:  wallet,
		log:     log.WithComponent("token_assembler"),
		now:     time.Now,
	}
}

// Grant is the resolved authorization a token pair is assembled from.
type Grant struct {
	Subject   string
	ClientID  string
	Scopes    []string
	SessionID string

	// WalletID, when already known (refresh path), skips the wallet lookup.
	WalletID string
}

func hasWalletScope(scopes []string) bool {
	for _, s := range scopes {
		if len(s) >= 7 && s[:7] == "wallet:" {
			return true
		}
	}
	return false
}

// Assemble mints the access token and a rotated refresh token for the grant.
// Wallet resolution failures propagate: a token promising wallet scopes
// without a wallet reference would be unusable.
func (a *TokenAssembler) Assemble(ctx context.Context, g Grant) (*dto.TokenResponse, error) {
	walletID := g.WalletID
	if walletID == "" && hasWalletScope(g.Scopes) {
		id, err := a.wallet.ResolveWalletID(ctx, g.Subject)
		if err != nil {
			return nil, err
		}
		walletID = id
	}

	accessToken, claims, err := a.issuer.Mint(ctx, token.MintParams{
		Subject:   g.Subject,
		ClientID:  g.ClientID,
		Scopes:    g.Scopes,
		WalletID:  walletID,
		SessionID: g.SessionID,
	})
	if err != nil {
		return nil, err
	}

	refreshToken, err := utils.GenerateSecureRandomString(constants.RefreshTokenBytes)
	if err != nil {
		return nil, err
	}
	now := a.now().UTC()
	err = a.refresh.Save(ctx, refreshToken, &models.RefreshTokenRecord{
		Subject:   g.Subject,
		ClientID:  g.ClientID,
		Scopes:    g.Scopes,
		SessionID: g.SessionID,
		WalletID:  walletID,
		CreatedAt: now,
		ExpiresAt: now.Add(constants.RefreshTokenTTL),
	})
	if err != nil {
		return nil, err
	}

	a.log.Info(ctx, "token pair issued", logger.Fields{
		"client":  g.ClientID,
		"subject": g.Subject,
		"jti":     claims.ID,
	})
	return &dto.TokenResponse{
		AccessToken:  accessToken,
		TokenType:    string(constants.TokenTypeBearer),
		ExpiresIn:    int(a.issuer.TTL() / time.Second),
		RefreshToken: refreshToken,
		Scope:        claims.Scope,
		UserID:       g.Subject,
		WalletID:     walletID,
	}, nil
}
