// Package identity implements the upstream identity provider client. Every
// call runs through a named circuit breaker; an open breaker surfaces as
// service_unavailable without touching the network.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tweenim/capauth/internal/config"
	"github.com/tweenim/capauth/internal/domain/service"
	"github.com/tweenim/capauth/pkg/breaker"
	"github.com/tweenim/capauth/pkg/constants"
	apperrors "github.com/tweenim/capauth/pkg/errors"
	"github.com/tweenim/capauth/pkg/logger"
)

// BreakerName identifies the identity provider in the breaker registry.
const BreakerName = "identity_provider"

type client struct {
	http    *http.Client
	baseURL string
	secret  string
	brk     *breaker.Breaker
	log     logger.Logger
}

// NewClient builds the identity provider client around the registry's
// breaker for this dependency.
func NewClient(cfg *config.IdentityConfig, registry *breaker.Registry, log logger.Logger) service.IdentityProvider {
	return &client{
		http:    &http.Client{Timeout: constants.DownstreamCallTimeout},
		baseURL: cfg.BaseURL,
		secret:  cfg.ClientSecret,
		brk:     registry.Get(BreakerName),
		log:     log.WithComponent("identity_client"),
	}
}

type sessionResponse struct {
	Subject   string `json:"subject"`
	SessionID string `json:"session_id"`
}

func (c *client) ResolveSession(ctx context.Context, sessionToken string) (string, string, error) {
	var resp sessionResponse
	err := c.brk.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/session", nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+sessionToken)
		return c.do(req, http.StatusOK, &resp)
	})
	if err != nil {
		return "", "", c.mapError(ctx, err, "resolve session")
	}
	if resp.Subject == "" {
		return "", "", apperrors.ErrAccessDenied()
	}
	return resp.Subject, resp.SessionID, nil
}

func (c *client) NotifyRevocation(ctx context.Context, subject, clientID string, scopes []string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"subject":   subject,
		"client_id": clientID,
		"scopes":    scopes,
	})
	if err != nil {
		return fmt.Errorf("marshal revocation notice: %w", err)
	}

	err = c.brk.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/api/v1/grants/revoke", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.secret)
		return c.do(req, http.StatusOK, nil)
	})
	if err != nil {
		return c.mapError(ctx, err, "notify revocation")
	}
	return nil
}

func (c *client) do(req *http.Request, wantStatus int, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("identity provider returned %d: %s", resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) mapError(ctx context.Context, err error, op string) error {
	if apperrors.Is(err, breaker.ErrOpen) {
		c.log.Warn(ctx, "identity provider breaker open", logger.Fields{"op": op})
		return apperrors.ErrServiceUnavailable(BreakerName)
	}
	c.log.Error(ctx, "identity provider call failed", err, logger.Fields{"op": op})
	return apperrors.ErrUpstreamFailure(BreakerName).WithCause(err)
}
