package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tweenim/capauth/internal/domain/models"
	"github.com/tweenim/capauth/internal/domain/token"
	"github.com/tweenim/capauth/internal/infrastructure/monitoring"
	"github.com/tweenim/capauth/pkg/constants"
	apperrors "github.com/tweenim/capauth/pkg/errors"
	"github.com/tweenim/capauth/pkg/logger"
)

// CapabilityAuth verifies the Bearer capability token on protected routes.
//
// Verification failures are internally distinguishable (expired, bad
// signature, wrong issuer, revoked, ...) and are logged and counted as such,
// but every one of them is reported to the caller as the same generic
// invalid_token response. Anything else would hand an attacker an oracle for
// probing forged tokens.
func CapabilityAuth(issuer *token.Issuer, metrics *monitoring.Metrics, log logger.Logger) gin.HandlerFunc {
	log = log.WithComponent("capability_auth")
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			metrics.RecordVerification("missing")
			abortInvalidToken(c)
			return
		}

		claims, err := issuer.Verify(c.Request.Context(), raw)
		if err != nil {
			kind := string(apperrors.CodeOf(err))
			metrics.RecordVerification(kind)
			if apperrors.IsVerificationKind(err) || apperrors.IsCode(err, constants.ErrCodeInvalidToken) {
				log.Info(c.Request.Context(), "token verification failed", logger.Fields{"kind": kind})
				abortInvalidToken(c)
				return
			}
			// Ledger outages and other internal failures are not token
			// problems; report them as what they are.
			log.Error(c.Request.Context(), "token verification errored", err)
			status := http.StatusInternalServerError
			if appErr, ok := apperrors.As(err); ok {
				status = appErr.HTTPStatus()
			}
			c.AbortWithStatusJSON(status, gin.H{
				"error":             string(apperrors.CodeOf(err)),
				"error_description": "token verification could not be completed",
			})
			return
		}

		metrics.RecordVerification("ok")
		ctx := context.WithValue(c.Request.Context(), constants.ContextKeyClaims, claims)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireScope gates a route on a scope carried by the verified token. It
// must run after CapabilityAuth.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ClaimsFrom(c.Request.Context())
		if claims == nil {
			abortInvalidToken(c)
			return
		}
		if !claims.HasScope(scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":             string(constants.ErrCodeInsufficientScope),
				"error_description": "the token does not grant the required scope",
			})
			return
		}
		c.Next()
	}
}

// ClaimsFrom returns the verified claims placed on the context by
// CapabilityAuth, or nil.
func ClaimsFrom(ctx context.Context) *models.CapabilityClaims {
	claims, _ := ctx.Value(constants.ContextKeyClaims).(*models.CapabilityClaims)
	return claims
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func abortInvalidToken(c *gin.Context) {
	appErr := apperrors.ErrInvalidToken()
	c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
	c.AbortWithStatusJSON(appErr.HTTPStatus(), gin.H{
		"error":             string(appErr.Code()),
		"error_description": appErr.Description(),
	})
}
