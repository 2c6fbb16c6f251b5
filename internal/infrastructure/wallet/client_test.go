package wallet

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tweenim/capauth/internal/config"
	"github.com/tweenim/capauth/pkg/breaker"
	"github.com/tweenim/capauth/pkg/constants"
	apperrors "github.com/tweenim/capauth/pkg/errors"
	"github.com/tweenim/capauth/pkg/logger"
)

func TestResolveWalletID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "@alice:tween.im", r.URL.Query().Get("subject"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"wallet_id":"wallet-42"}`))
	}))
	defer srv.Close()

	reg := breaker.NewRegistry()
	c := NewClient(&config.WalletConfig{BaseURL: srv.URL}, reg, logger.NewNoopLogger())

	id, err := c.ResolveWalletID(context.Background(), "@alice:tween.im")
	require.NoError(t, err)
	assert.Equal(t, "wallet-42", id)
}

func TestLookupFailureDistinctFromOpenBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	reg := breaker.NewRegistry(breaker.WithFailureThreshold(1))
	c := NewClient(&config.WalletConfig{BaseURL: srv.URL}, reg, logger.NewNoopLogger())

	// First call reaches the wallet service and fails outright.
	_, err := c.ResolveWalletID(context.Background(), "@alice:tween.im")
	require.Error(t, err)
	assert.Equal(t, constants.ErrCodeServerError, apperrors.CodeOf(err))

	// Second call is short-circuited by the now-open breaker.
	_, err = c.ResolveWalletID(context.Background(), "@alice:tween.im")
	require.Error(t, err)
	assert.Equal(t, constants.ErrCodeServiceUnavailable, apperrors.CodeOf(err))
}
