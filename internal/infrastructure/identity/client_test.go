package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tweenim/capauth/internal/config"
	"github.com/tweenim/capauth/pkg/breaker"
	"github.com/tweenim/capauth/pkg/constants"
	apperrors "github.com/tweenim/capauth/pkg/errors"
	"github.com/tweenim/capauth/pkg/logger"
)

func TestDownstreamFailureIsNotServiceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	reg := breaker.NewRegistry(breaker.WithFailureThreshold(5))
	c := NewClient(&config.IdentityConfig{BaseURL: srv.URL}, reg, logger.NewNoopLogger())

	// The provider was reached and answered badly: that is a failure, not
	// an open circuit.
	_, _, err := c.ResolveSession(context.Background(), "session-token")
	require.Error(t, err)
	assert.Equal(t, constants.ErrCodeServerError, apperrors.CodeOf(err))
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, appErr.HTTPStatus())
}

func TestOpenBreakerIsServiceUnavailable(t *testing.T) {
	var reached atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	reg := breaker.NewRegistry(breaker.WithFailureThreshold(1))
	c := NewClient(&config.IdentityConfig{BaseURL: srv.URL}, reg, logger.NewNoopLogger())

	_, _, err := c.ResolveSession(context.Background(), "session-token")
	require.Error(t, err)
	require.Equal(t, int32(1), reached.Load())

	// The breaker is open now: the provider must not see a second call,
	// and the error code flips to service_unavailable.
	_, _, err = c.ResolveSession(context.Background(), "session-token")
	require.Error(t, err)
	assert.Equal(t, constants.ErrCodeServiceUnavailable, apperrors.CodeOf(err))
	assert.Equal(t, int32(1), reached.Load())
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.HTTPStatus())
}
