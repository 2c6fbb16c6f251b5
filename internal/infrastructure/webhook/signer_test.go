package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tweenim/capauth/internal/domain/models"
	"github.com/tweenim/capauth/pkg/constants"
	apperrors "github.com/tweenim/capauth/pkg/errors"
	"github.com/tweenim/capauth/pkg/logger"
)

func TestSignDeterministic(t *testing.T) {
	sig := Sign("whsec_test", 1700000000, []byte(`{"hello":"world"}`))
	assert.Equal(t, sig, Sign("whsec_test", 1700000000, []byte(`{"hello":"world"}`)))
	assert.NotEqual(t, sig, Sign("whsec_other", 1700000000, []byte(`{"hello":"world"}`)))
	assert.NotEqual(t, sig, Sign("whsec_test", 1700000001, []byte(`{"hello":"world"}`)))
	assert.NotEqual(t, sig, Sign("whsec_test", 1700000000, []byte(`{"hello":"w0rld"}`)))
}

func TestVerifySignature(t *testing.T) {
	now := time.Unix(1700000000, 0)
	body := []byte(`{"event":"permissions.revoked"}`)
	ts := now.Unix()
	sig := Sign("whsec_test", ts, body)

	assert.NoError(t, VerifySignature("whsec_test", strconv.FormatInt(ts, 10), sig, body, now))

	// Within the skew window, in either direction.
	assert.NoError(t, VerifySignature("whsec_test", strconv.FormatInt(ts, 10), sig, body, now.Add(constants.WebhookMaxSkew)))
	assert.NoError(t, VerifySignature("whsec_test", strconv.FormatInt(ts, 10), sig, body, now.Add(-constants.WebhookMaxSkew)))

	err := VerifySignature("whsec_test", strconv.FormatInt(ts, 10), sig, body, now.Add(constants.WebhookMaxSkew+time.Second))
	assert.True(t, apperrors.IsCode(err, constants.ErrCodeInvalidSignature))

	err = VerifySignature("whsec_test", strconv.FormatInt(ts, 10), sig, []byte("tampered"), now)
	assert.True(t, apperrors.IsCode(err, constants.ErrCodeInvalidSignature))

	err = VerifySignature("whsec_wrong", strconv.FormatInt(ts, 10), sig, body, now)
	assert.True(t, apperrors.IsCode(err, constants.ErrCodeInvalidSignature))

	err = VerifySignature("whsec_test", "", sig, body, now)
	assert.True(t, apperrors.IsCode(err, constants.ErrCodeInvalidSignature))

	err = VerifySignature("whsec_test", "not-a-number", sig, body, now)
	assert.True(t, apperrors.IsCode(err, constants.ErrCodeInvalidSignature))
}

func TestDispatcherSignsAndDelivers(t *testing.T) {
	var gotSig, gotTS, gotKey string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(constants.WebhookSignatureHeader)
		gotTS = r.Header.Get(constants.WebhookTimestampHeader)
		gotKey = r.Header.Get(constants.WebhookIdempotencyHeader)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	app := &models.MiniApp{
		AppID:         "app-123",
		WebhookURL:    srv.URL,
		WebhookSecret: "whsec_test",
	}
	d := NewDispatcher(logger.NewNoopLogger())

	err := d.NotifyRevocation(context.Background(), app, "@alice:tween.im", []string{"wallet:pay"}, time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, gotSig)
	require.NotEmpty(t, gotKey)

	// The receiver can verify what we sent.
	assert.NoError(t, VerifySignature("whsec_test", gotTS, gotSig, gotBody, time.Now()))
}

func TestDispatcherRetriesWithSameIdempotencyKey(t *testing.T) {
	var calls atomic.Int32
	keys := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys <- r.Header.Get(constants.WebhookIdempotencyHeader)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	app := &models.MiniApp{AppID: "app-123", WebhookURL: srv.URL, WebhookSecret: "whsec_test"}
	d := NewDispatcher(logger.NewNoopLogger())

	err := d.NotifyRevocation(context.Background(), app, "@alice:tween.im", []string{"wallet:pay"}, time.Now())
	require.NoError(t, err)
	require.EqualValues(t, 2, calls.Load())

	first, second := <-keys, <-keys
	assert.Equal(t, first, second)
}

func TestDispatcherSkipsAppsWithoutWebhook(t *testing.T) {
	d := NewDispatcher(logger.NewNoopLogger())
	err := d.NotifyRevocation(context.Background(), &models.MiniApp{AppID: "app-123"}, "@alice:tween.im", []string{"wallet:pay"}, time.Now())
	assert.NoError(t, err)
}
