package handlers

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tweenim/capauth/internal/application/dto"
	"github.com/tweenim/capauth/internal/infrastructure/monitoring"
	"github.com/tweenim/capauth/pkg/constants"
	apperrors "github.com/tweenim/capauth/pkg/errors"
	"github.com/tweenim/capauth/pkg/logger"
)

// SessionCookieName is the platform session cookie checked on consent
// endpoints. API clients may send the session token in X-Session-Token
// instead.
const SessionCookieName = "tween_session"

// SessionTokenHeader is the header alternative to the session cookie.
const SessionTokenHeader = "X-Session-Token"

// OAuthHandler serves the authorization-code flow endpoints and the token
// endpoint, which also fronts the device grant.
type OAuthHandler struct {
	auth    AuthFlow
	device  DeviceFlow
	session SessionResolver
	metrics *monitoring.Metrics
	log     logger.Logger
}

// NewOAuthHandler creates the handler.
func NewOAuthHandler(auth AuthFlow, device DeviceFlow, session SessionResolver, metrics *monitoring.Metrics, log logger.Logger) *OAuthHandler {
	return &OAuthHandler{
		auth:    auth,
		device:  device,
		session: session,
		metrics: metrics,
		log:     log.WithComponent("oauth_handler"),
	}
}

// Authorize handles GET /authorize: validates the request and returns the
// consent descriptor the approval screen renders.
func (h *OAuthHandler) Authorize(c *gin.Context) {
	var in dto.AuthorizeInput
	if err := c.ShouldBindQuery(&in); err != nil {
		respondError(c, apperrors.ErrInvalidRequest(err.Error()))
		return
	}

	desc, err := h.auth.Authorize(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, desc)
}

// DescribeConsent handles GET /consent: re-renders the consent descriptor
// for the signed-in user, marking already-granted scopes.
func (h *OAuthHandler) DescribeConsent(c *gin.Context) {
	requestID := c.Query("request_id")
	if requestID == "" {
		respondError(c, apperrors.ErrInvalidRequest("request_id is required"))
		return
	}
	subject, _, err := h.session.ResolveSession(c.Request.Context(), sessionToken(c))
	if err != nil {
		respondError(c, err)
		return
	}

	desc, err := h.auth.DescribeForSubject(c.Request.Context(), requestID, subject)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, desc)
}

// Consent handles POST /consent: applies the user's decision and redirects
// back to the mini-app with a code or an access_denied error.
func (h *OAuthHandler) Consent(c *gin.Context) {
	var in dto.ConsentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, apperrors.ErrInvalidRequest(err.Error()))
		return
	}
	in.SessionToken = sessionToken(c)

	res, err := h.auth.Consent(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, consentRedirect(res))
}

// Token handles POST /token, dispatching on grant_type. The device grant is
// routed to the device flow's poll.
func (h *OAuthHandler) Token(c *gin.Context) {
	var in dto.TokenInput
	if err := c.ShouldBind(&in); err != nil {
		respondError(c, apperrors.ErrInvalidRequest(err.Error()))
		return
	}

	start := time.Now()
	var (
		resp *dto.TokenResponse
		err  error
	)
	switch in.GrantType {
	case constants.GrantTypeAuthorizationCode:
		resp, err = h.auth.ExchangeCode(c.Request.Context(), in)
	case constants.GrantTypeRefreshToken:
		resp, err = h.auth.Refresh(c.Request.Context(), in)
	case constants.GrantTypeDeviceCode:
		resp, err = h.device.Poll(c.Request.Context(), in)
	default:
		err = apperrors.ErrUnsupportedGrantType(in.GrantType)
	}

	result := "ok"
	if err != nil {
		result = string(apperrors.CodeOf(err))
	}
	h.metrics.RecordTokenIssue(in.GrantType, result, time.Since(start))

	if err != nil {
		respondError(c, err)
		return
	}
	// RFC 6749 §5.1: token responses must not be cached.
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(http.StatusOK, resp)
}

func consentRedirect(res *dto.ConsentResult) string {
	q := url.Values{}
	if res.Error != "" {
		q.Set("error", res.Error)
	} else {
		q.Set("code", res.Code)
	}
	if res.State != "" {
		q.Set("state", res.State)
	}
	sep := "?"
	if u, err := url.Parse(res.RedirectURI); err == nil && u.RawQuery != "" {
		sep = "&"
	}
	return res.RedirectURI + sep + q.Encode()
}

func sessionToken(c *gin.Context) string {
	if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie != "" {
		return cookie
	}
	return c.GetHeader(SessionTokenHeader)
}
