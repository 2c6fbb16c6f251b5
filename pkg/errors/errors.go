// Package errors defines structured error types for the capability
// authorization service. Errors carry an OAuth 2.0 style error code, an HTTP
// status, and an optional cause chain, so handlers can translate any error
// reaching the interface layer without type switches scattered around.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tweenim/capauth/pkg/constants"
)

// AppError is a structured error with protocol metadata attached.
type AppError interface {
	error

	// Code returns the OAuth 2.0 error code.
	Code() constants.ErrorCode

	// HTTPStatus returns the HTTP status the error maps to.
	HTTPStatus() int

	// Description returns the human-readable description.
	Description() string

	// Unwrap returns the underlying cause, if any.
	Unwrap() error

	// WithCause attaches a cause error and returns the receiver.
	WithCause(cause error) AppError

	// WithMetadata attaches context metadata and returns the receiver.
	WithMetadata(key string, value interface{}) AppError

	// Metadata returns all attached metadata.
	Metadata() map[string]interface{}
}

type baseError struct {
	code        constants.ErrorCode
	httpStatus  int
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

func (e *baseError) Error() string {
	if e.message != "" {
		return e.message
	}
	return e.description
}

func (e *baseError) Code() constants.ErrorCode { return e.code }
func (e *baseError) HTTPStatus() int           { return e.httpStatus }
func (e *baseError) Description() string       { return e.description }
func (e *baseError) Unwrap() error             { return e.cause }

func (e *baseError) WithCause(cause error) AppError {
	e.cause = cause
	return e
}

func (e *baseError) WithMetadata(key string, value interface{}) AppError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

func (e *baseError) Metadata() map[string]interface{} { return e.metadata }

// New creates an AppError with the given code, status and messages.
func New(code constants.ErrorCode, httpStatus int, description, message string) AppError {
	return &baseError{
		code:        code,
		httpStatus:  httpStatus,
		description: description,
		message:     message,
	}
}

// As extracts an AppError from an error chain.
func As(err error) (AppError, bool) {
	var appErr *baseError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the error code of err, or server_error for plain errors.
func CodeOf(err error) constants.ErrorCode {
	if appErr, ok := As(err); ok {
		return appErr.Code()
	}
	return constants.ErrCodeServerError
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code constants.ErrorCode) bool {
	return CodeOf(err) == code
}

// ================================================================================
// Request / grant errors
// ================================================================================

// ErrInvalidRequest signals a malformed or incomplete request. Never retried.
func ErrInvalidRequest(message string) AppError {
	return New(constants.ErrCodeInvalidRequest, http.StatusBadRequest,
		"The request is missing a required parameter, includes an invalid parameter value, or is otherwise malformed.",
		message)
}

// ErrInvalidClient signals an unknown or inactive client application.
func ErrInvalidClient(message string) AppError {
	return New(constants.ErrCodeInvalidClient, http.StatusBadRequest,
		"Mini-app not found or inactive.",
		message)
}

// ErrInvalidGrant signals an invalid, expired, consumed or unknown grant.
func ErrInvalidGrant(message string) AppError {
	return New(constants.ErrCodeInvalidGrant, http.StatusBadRequest,
		"The provided authorization grant or refresh token is invalid, expired, revoked, or was already used.",
		message)
}

// ErrInvalidScope signals a request for scopes outside the valid vocabulary.
func ErrInvalidScope(message string) AppError {
	return New(constants.ErrCodeInvalidScope, http.StatusBadRequest,
		"The requested scope is invalid or unknown.",
		message)
}

// ErrScopeEscalation signals a request for scopes outside the client's
// registered manifest. Distinct from ErrInvalidScope: this is the escalation
// guard, reported with 403.
func ErrScopeEscalation(message string) AppError {
	return New(constants.ErrCodeInsufficientScope, http.StatusForbidden,
		"The requested scope is not registered for this mini-app.",
		message)
}

// ErrUnsupportedResponseType rejects any response_type other than "code".
func ErrUnsupportedResponseType() AppError {
	return New(constants.ErrCodeUnsupportedResponseType, http.StatusBadRequest,
		"Only the authorization code response type is supported.",
		"unsupported response_type")
}

// ErrUnsupportedGrantType rejects unknown grant types.
func ErrUnsupportedGrantType(got string) AppError {
	return New(constants.ErrCodeUnsupportedGrantType, http.StatusBadRequest,
		"The authorization grant type is not supported.",
		fmt.Sprintf("unsupported grant_type %q", got))
}

// ErrAccessDenied signals that the resource owner denied the request.
func ErrAccessDenied() AppError {
	return New(constants.ErrCodeAccessDenied, http.StatusForbidden,
		"The resource owner denied the request.",
		"access denied")
}

// ErrNotFound signals an unknown entity. Grant lookups report invalid_grant
// instead to avoid distinguishing unknown from expired.
func ErrNotFound(message string) AppError {
	return New(constants.ErrCodeNotFound, http.StatusNotFound,
		"The requested resource was not found.",
		message)
}

// ErrConflict signals a duplicate idempotency key or reused one-time code.
func ErrConflict(message string) AppError {
	return New(constants.ErrCodeConflict, http.StatusConflict,
		"The request conflicts with an already processed request.",
		message)
}

// ================================================================================
// Device flow errors
// ================================================================================

// ErrAuthorizationPending is returned while the user has not yet decided.
func ErrAuthorizationPending() AppError {
	return New(constants.ErrCodeAuthorizationPending, http.StatusBadRequest,
		"The authorization request is still pending.",
		"authorization pending")
}

// ErrSlowDown is returned when the device polls faster than the interval.
func ErrSlowDown() AppError {
	return New(constants.ErrCodeSlowDown, http.StatusBadRequest,
		"Polling too frequently; increase the polling interval.",
		"slow down")
}

// ErrDeviceFlowExpired is returned once the device session TTL has elapsed.
func ErrDeviceFlowExpired() AppError {
	return New(constants.ErrCodeExpiredToken, http.StatusBadRequest,
		"The device authorization has expired.",
		"device authorization expired")
}

// ================================================================================
// Token verification errors
// ================================================================================
//
// These are internally distinguishable for logging, but the HTTP layer must
// collapse every one of them to a generic invalid_token response.

// ErrTokenExpired signals exp in the past.
func ErrTokenExpired() AppError {
	return New(constants.ErrCodeTokenExpired, http.StatusUnauthorized,
		"The capability token has expired.", "token expired")
}

// ErrTokenNotYetValid signals nbf in the future.
func ErrTokenNotYetValid() AppError {
	return New(constants.ErrCodeTokenNotYetValid, http.StatusUnauthorized,
		"The capability token is not yet valid.", "token not yet valid")
}

// ErrBadSignature signals a signature or algorithm mismatch.
func ErrBadSignature() AppError {
	return New(constants.ErrCodeBadSignature, http.StatusUnauthorized,
		"The capability token signature is invalid.", "bad signature")
}

// ErrIssuerMismatch signals an unexpected iss claim.
func ErrIssuerMismatch() AppError {
	return New(constants.ErrCodeIssuerMismatch, http.StatusUnauthorized,
		"The capability token issuer is not recognized.", "issuer mismatch")
}

// ErrWrongTokenType signals an unexpected token_type claim.
func ErrWrongTokenType() AppError {
	return New(constants.ErrCodeWrongTokenType, http.StatusUnauthorized,
		"The token is not a capability access token.", "wrong token type")
}

// ErrTokenRevoked signals that every scope on the token has been revoked.
func ErrTokenRevoked() AppError {
	return New(constants.ErrCodeTokenRevoked, http.StatusUnauthorized,
		"The capability token has been revoked.", "token revoked")
}

// ErrInvalidToken is the collapsed, externally visible verification failure.
func ErrInvalidToken() AppError {
	return New(constants.ErrCodeInvalidToken, http.StatusUnauthorized,
		"The access token is invalid.", "invalid token")
}

// IsVerificationKind reports whether err is one of the internal token
// verification kinds that must be collapsed before leaving the service.
func IsVerificationKind(err error) bool {
	switch CodeOf(err) {
	case constants.ErrCodeTokenExpired,
		constants.ErrCodeTokenNotYetValid,
		constants.ErrCodeBadSignature,
		constants.ErrCodeIssuerMismatch,
		constants.ErrCodeWrongTokenType,
		constants.ErrCodeTokenRevoked:
		return true
	}
	return false
}

// ================================================================================
// Infrastructure errors
// ================================================================================

// ErrServiceUnavailable signals an open circuit breaker: the downstream was
// not called at all. Distinct from a genuine downstream failure so operators
// can tell "we didn't even try" from "it failed".
func ErrServiceUnavailable(dependency string) AppError {
	return New(constants.ErrCodeServiceUnavailable, http.StatusServiceUnavailable,
		"A downstream dependency is temporarily unavailable.",
		fmt.Sprintf("service %s is currently unavailable", dependency)).
		WithMetadata("dependency", dependency)
}

// ErrUpstreamFailure signals that a downstream dependency was called and the
// call failed. Distinct from ErrServiceUnavailable, which means the breaker
// was open and the call never left the process.
func ErrUpstreamFailure(dependency string) AppError {
	return New(constants.ErrCodeServerError, http.StatusBadGateway,
		"A downstream dependency failed.",
		fmt.Sprintf("call to %s failed", dependency)).
		WithMetadata("dependency", dependency)
}

// ErrInvalidSignature signals a PKCE or webhook signature failure.
func ErrInvalidSignature(message string) AppError {
	return New(constants.ErrCodeInvalidSignature, http.StatusUnauthorized,
		"Signature verification failed.", message)
}

// ErrServerError signals an unexpected internal failure.
func ErrServerError(message string) AppError {
	return New(constants.ErrCodeServerError, http.StatusInternalServerError,
		"An internal server error occurred.", message)
}

// Is delegates to the standard library for sentinel comparisons.
func Is(err, target error) bool { return errors.Is(err, target) }
