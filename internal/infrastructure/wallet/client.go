// Package wallet implements the wallet service client used to resolve the
// wallet reference embedded in tokens carrying wallet scopes.
package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tweenim/capauth/internal/config"
	"github.com/tweenim/capauth/internal/domain/service"
	"github.com/tweenim/capauth/pkg/breaker"
	"github.com/tweenim/capauth/pkg/constants"
	apperrors "github.com/tweenim/capauth/pkg/errors"
	"github.com/tweenim/capauth/pkg/logger"
)

// BreakerName identifies the wallet service in the breaker registry.
const BreakerName = "wallet_service"

type client struct {
	http    *http.Client
	baseURL string
	token   string
	brk     *breaker.Breaker
	log     logger.Logger
}

// NewClient builds the wallet service client.
func NewClient(cfg *config.WalletConfig, registry *breaker.Registry, log logger.Logger) service.WalletService {
	return &client{
		http:    &http.Client{Timeout: constants.DownstreamCallTimeout},
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		brk:     registry.Get(BreakerName),
		log:     log.WithComponent("wallet_client"),
	}
}

func (c *client) ResolveWalletID(ctx context.Context, subject string) (string, error) {
	var resp struct {
		WalletID string `json:"wallet_id"`
	}
	err := c.brk.Execute(ctx, func(ctx context.Context) error {
		u := c.baseURL + "/api/v1/wallets/lookup?subject=" + url.QueryEscape(subject)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)

		res, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()

		if res.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
			return fmt.Errorf("wallet service returned %d: %s", res.StatusCode, body)
		}
		return json.NewDecoder(res.Body).Decode(&resp)
	})
	if err != nil {
		if apperrors.Is(err, breaker.ErrOpen) {
			c.log.Warn(ctx, "wallet service breaker open")
			return "", apperrors.ErrServiceUnavailable(BreakerName)
		}
		c.log.Error(ctx, "wallet lookup failed", err)
		return "", apperrors.ErrUpstreamFailure(BreakerName).WithCause(err)
	}
	return resp.WalletID, nil
}
