// Package handlers provides the HTTP request handlers for the authorization
// endpoints.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tweenim/capauth/pkg/constants"
	apperrors "github.com/tweenim/capauth/pkg/errors"
)

// respondError translates any error into the OAuth-style JSON error body.
// Internal token verification kinds are collapsed to invalid_token before
// they leave the service; an open breaker adds a Retry-After hint.
func respondError(c *gin.Context, err error) {
	if apperrors.IsVerificationKind(err) {
		err = apperrors.ErrInvalidToken()
	}

	appErr, ok := apperrors.As(err)
	if !ok {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":             string(constants.ErrCodeServerError),
			"error_description": "An internal server error occurred.",
		})
		return
	}
	if appErr.Code() == constants.ErrCodeServiceUnavailable {
		c.Header("Retry-After", "30")
	}
	c.AbortWithStatusJSON(appErr.HTTPStatus(), gin.H{
		"error":             string(appErr.Code()),
		"error_description": appErr.Description(),
	})
}
