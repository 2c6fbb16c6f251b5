package handlers

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tweenim/capauth/internal/application/dto"
	"github.com/tweenim/capauth/internal/domain/token"
	"github.com/tweenim/capauth/internal/infrastructure/crypto"
	"github.com/tweenim/capauth/internal/infrastructure/monitoring"
	"github.com/tweenim/capauth/internal/infrastructure/webhook"
	"github.com/tweenim/capauth/pkg/constants"
	apperrors "github.com/tweenim/capauth/pkg/errors"
	"github.com/tweenim/capauth/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testMetrics = monitoring.NewMetrics()

// ---- fakes -----------------------------------------------------------------

type fakeAuthFlow struct {
	exchangeCalls int
	refreshCalls  int
	consentResult *dto.ConsentResult
	tokenResponse *dto.TokenResponse
	err           error
}

func (f *fakeAuthFlow) Authorize(ctx context.Context, in dto.AuthorizeInput) (*dto.ConsentDescriptor, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dto.ConsentDescriptor{RequestID: "req-1", State: in.State}, nil
}

func (f *fakeAuthFlow) DescribeForSubject(ctx context.Context, requestID, subject string) (*dto.ConsentDescriptor, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dto.ConsentDescriptor{RequestID: requestID}, nil
}

func (f *fakeAuthFlow) Consent(ctx context.Context, in dto.ConsentInput) (*dto.ConsentResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.consentResult, nil
}

func (f *fakeAuthFlow) ExchangeCode(ctx context.Context, in dto.TokenInput) (*dto.TokenResponse, error) {
	f.exchangeCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.tokenResponse, nil
}

func (f *fakeAuthFlow) Refresh(ctx context.Context, in dto.TokenInput) (*dto.TokenResponse, error) {
	f.refreshCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.tokenResponse, nil
}

type fakeDeviceFlow struct {
	pollCalls int
	response  *dto.TokenResponse
	err       error
}

func (f *fakeDeviceFlow) Start(ctx context.Context, in dto.DeviceStartInput) (*dto.DeviceStartResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dto.DeviceStartResponse{DeviceCode: "dc", UserCode: "UC", Interval: 5, ExpiresIn: 900}, nil
}

func (f *fakeDeviceFlow) Verify(ctx context.Context, in dto.DeviceVerifyInput) (*dto.DeviceVerifyResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dto.DeviceVerifyResponse{Status: "approved"}, nil
}

func (f *fakeDeviceFlow) Poll(ctx context.Context, in dto.TokenInput) (*dto.TokenResponse, error) {
	f.pollCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

type fakeRevoker struct {
	lastKey   string
	lastBody  []byte
	revokeIn  *dto.RevokeInput
	ack       *dto.WebhookAck
	result    *dto.RevokeResult
	revokeErr error
}

func (f *fakeRevoker) Revoke(ctx context.Context, in dto.RevokeInput) (*dto.RevokeResult, error) {
	f.revokeIn = &in
	if f.revokeErr != nil {
		return nil, f.revokeErr
	}
	return f.result, nil
}

func (f *fakeRevoker) HandleCollaboratorWebhook(ctx context.Context, idempotencyKey string, body []byte) (*dto.WebhookAck, error) {
	f.lastKey = idempotencyKey
	f.lastBody = body
	return f.ack, nil
}

type fakeSessions struct{ err error }

func (f *fakeSessions) ResolveSession(ctx context.Context, sessionToken string) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	return "@alice:tween.im", "sess-1", nil
}

// ---- token endpoint --------------------------------------------------------

func newOAuthHandler(auth *fakeAuthFlow, device *fakeDeviceFlow) *OAuthHandler {
	return NewOAuthHandler(auth, device, &fakeSessions{}, testMetrics, logger.NewNoopLogger())
}

func postForm(t *testing.T, engine *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestTokenGrantDispatch(t *testing.T) {
	auth := &fakeAuthFlow{tokenResponse: &dto.TokenResponse{AccessToken: "at", TokenType: "Bearer"}}
	device := &fakeDeviceFlow{response: &dto.TokenResponse{AccessToken: "dt", TokenType: "Bearer"}}
	engine := gin.New()
	engine.POST("/token", newOAuthHandler(auth, device).Token)

	w := postForm(t, engine, "/token", url.Values{
		"grant_type": {constants.GrantTypeAuthorizationCode},
		"client_id":  {"app-1"}, "code": {"c"}, "code_verifier": {"v"},
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, auth.exchangeCalls)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	w = postForm(t, engine, "/token", url.Values{
		"grant_type": {constants.GrantTypeRefreshToken}, "refresh_token": {"rt"},
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, auth.refreshCalls)

	w = postForm(t, engine, "/token", url.Values{
		"grant_type": {constants.GrantTypeDeviceCode}, "device_code": {"dc"},
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, device.pollCalls)

	w = postForm(t, engine, "/token", url.Values{"grant_type": {"password"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(constants.ErrCodeUnsupportedGrantType), body["error"])
}

func TestTokenErrorShape(t *testing.T) {
	auth := &fakeAuthFlow{err: apperrors.ErrInvalidGrant("code consumed")}
	engine := gin.New()
	engine.POST("/token", newOAuthHandler(auth, &fakeDeviceFlow{}).Token)

	w := postForm(t, engine, "/token", url.Values{
		"grant_type": {constants.GrantTypeAuthorizationCode},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "invalid_grant", body["error"])
	assert.NotContains(t, body["error_description"], "code consumed",
		"internal messages must not leak; only the generic description is exposed")
}

func TestTokenServiceUnavailableSetsRetryAfter(t *testing.T) {
	auth := &fakeAuthFlow{err: apperrors.ErrServiceUnavailable("wallet_service")}
	engine := gin.New()
	engine.POST("/token", newOAuthHandler(auth, &fakeDeviceFlow{}).Token)

	w := postForm(t, engine, "/token", url.Values{
		"grant_type": {constants.GrantTypeAuthorizationCode},
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
}

func TestDeviceTokenEndpointRequiresDeviceGrant(t *testing.T) {
	device := &fakeDeviceFlow{response: &dto.TokenResponse{AccessToken: "dt", TokenType: "Bearer"}}
	engine := gin.New()
	engine.POST("/device/token", NewDeviceHandler(device, testMetrics, logger.NewNoopLogger()).Token)

	w := postForm(t, engine, "/device/token", url.Values{
		"grant_type":  {constants.GrantTypeAuthorizationCode},
		"device_code": {"dc"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(constants.ErrCodeUnsupportedGrantType), body["error"])
	assert.Zero(t, device.pollCalls, "the flow must not be polled for a foreign grant type")

	w = postForm(t, engine, "/device/token", url.Values{
		"grant_type":  {constants.GrantTypeDeviceCode},
		"device_code": {"dc"},
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, device.pollCalls)
}

// ---- consent ---------------------------------------------------------------

func TestConsentApproveRedirectsWithCode(t *testing.T) {
	auth := &fakeAuthFlow{consentResult: &dto.ConsentResult{
		RedirectURI: "https://app.example/cb",
		Code:        "authcode",
		State:       "xyz",
	}}
	engine := gin.New()
	engine.POST("/consent", newOAuthHandler(auth, &fakeDeviceFlow{}).Consent)

	payload, _ := json.Marshal(dto.ConsentInput{RequestID: "req-1", Approve: true})
	req := httptest.NewRequest(http.MethodPost, "/consent", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SessionTokenHeader, "sess")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "app.example", loc.Host)
	assert.Equal(t, "authcode", loc.Query().Get("code"))
	assert.Equal(t, "xyz", loc.Query().Get("state"))
}

func TestConsentDenyRedirectsWithError(t *testing.T) {
	auth := &fakeAuthFlow{consentResult: &dto.ConsentResult{
		RedirectURI: "https://app.example/cb?env=prod",
		Error:       "access_denied",
		State:       "xyz",
	}}
	engine := gin.New()
	engine.POST("/consent", newOAuthHandler(auth, &fakeDeviceFlow{}).Consent)

	payload, _ := json.Marshal(dto.ConsentInput{RequestID: "req-1"})
	req := httptest.NewRequest(http.MethodPost, "/consent", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "access_denied", loc.Query().Get("error"))
	assert.Empty(t, loc.Query().Get("code"))
	// Existing query params on the registered URI survive.
	assert.Equal(t, "prod", loc.Query().Get("env"))
}

// ---- collaborator webhook --------------------------------------------------

func webhookRequest(secret string, body []byte, at time.Time) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/collaborator", bytes.NewReader(body))
	ts := at.Unix()
	req.Header.Set(constants.WebhookTimestampHeader, strconv.FormatInt(ts, 10))
	req.Header.Set(constants.WebhookSignatureHeader, webhook.Sign(secret, ts, body))
	req.Header.Set(constants.WebhookIdempotencyHeader, "idem-1")
	return req
}

func TestCollaboratorWebhookVerifiesSignature(t *testing.T) {
	revoker := &fakeRevoker{ack: &dto.WebhookAck{Received: true, EventID: "ev-1"}}
	h := NewRevocationHandler(revoker, "whsec", testMetrics, logger.NewNoopLogger())
	engine := gin.New()
	engine.POST("/webhooks/collaborator", h.CollaboratorWebhook)

	body := []byte(`{"event":"permissions.revoked","subject":"@a:x","client_id":"app-1"}`)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, webhookRequest("whsec", body, time.Now()))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "idem-1", revoker.lastKey)
	assert.Equal(t, body, revoker.lastBody)

	// Wrong secret.
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, webhookRequest("other-secret", body, time.Now()))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Stale timestamp.
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, webhookRequest("whsec", body, time.Now().Add(-10*time.Minute)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRevokeEndpoint(t *testing.T) {
	revoker := &fakeRevoker{result: &dto.RevokeResult{
		RevokedScopes:          []string{"wallet:pay"},
		InvalidatedTokensCount: 2,
		RevocationEventID:      "ev-9",
	}}
	h := NewRevocationHandler(revoker, "whsec", testMetrics, logger.NewNoopLogger())
	engine := gin.New()
	engine.POST("/revoke", h.Revoke)

	payload, _ := json.Marshal(dto.RevokeInput{
		Subject: "@alice:tween.im", ClientID: "app-1", Scopes: []string{"wallet:pay"},
	})
	req := httptest.NewRequest(http.MethodPost, "/revoke", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "ev-9", body["revocation_event_id"])
	assert.Equal(t, float64(2), body["invalidated_tokens_count"])
	require.NotNil(t, revoker.revokeIn)
	assert.Equal(t, []string{"wallet:pay"}, revoker.revokeIn.Scopes)
}

// ---- jwks ------------------------------------------------------------------

type singleKey struct{ key *rsa.PrivateKey }

func (k singleKey) SigningKey() (string, *rsa.PrivateKey, error) { return "kid-1", k.key, nil }
func (k singleKey) VerificationKey(kid string) (*rsa.PublicKey, error) {
	return &k.key.PublicKey, nil
}
func (k singleKey) PublicKeys() map[string]*rsa.PublicKey {
	return map[string]*rsa.PublicKey{"kid-1": &k.key.PublicKey}
}

var _ token.KeyManager = singleKey{}

func TestJWKSEndpoint(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	engine := gin.New()
	engine.GET("/.well-known/jwks.json", NewJWKSHandler(singleKey{key: key}).GetJWKS)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Cache-Control"), "max-age=300")

	var jwks crypto.JWKS
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &jwks))
	require.Len(t, jwks.Keys, 1)
	assert.Equal(t, "kid-1", jwks.Keys[0].Kid)
	assert.Equal(t, "RSA", jwks.Keys[0].Kty)
	assert.Equal(t, "RS256", jwks.Keys[0].Alg)
}

// ---- error collapsing ------------------------------------------------------

func TestRespondErrorCollapsesVerificationKinds(t *testing.T) {
	for _, err := range []error{
		apperrors.ErrTokenExpired(),
		apperrors.ErrBadSignature(),
		apperrors.ErrIssuerMismatch(),
		apperrors.ErrWrongTokenType(),
		apperrors.ErrTokenRevoked(),
	} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		respondError(c, err)

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "invalid_token", body["error"], "kind %v must be collapsed", err)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
}
