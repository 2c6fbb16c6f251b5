// Package dto defines the request and response shapes exchanged between the
// HTTP layer and the application services.
package dto

import "github.com/tweenim/capauth/internal/domain/scope"

// AuthorizeInput is a parsed /authorize request.
type AuthorizeInput struct {
	ClientID            string `form:"client_id" json:"client_id"`
	RedirectURI         string `form:"redirect_uri" json:"redirect_uri"`
	ResponseType        string `form:"response_type" json:"response_type"`
	Scope               string `form:"scope" json:"scope"`
	State               string `form:"state" json:"state"`
	CodeChallenge       string `form:"code_challenge" json:"code_challenge"`
	CodeChallengeMethod string `form:"code_challenge_method" json:"code_challenge_method"`
}

// ScopeDescriptor describes one requested scope for the consent screen.
type ScopeDescriptor struct {
	Scope       string            `json:"scope"`
	Description string            `json:"description"`
	Sensitivity scope.Sensitivity `json:"sensitivity"`
	Note        string            `json:"note,omitempty"`

	// RequiresConsent is false when a stored grant already covers the scope.
	// Critical scopes always require consent.
	RequiresConsent bool `json:"requires_consent"`
}

// MiniAppDescriptor is the client identity block shown on consent screens.
type MiniAppDescriptor struct {
	AppID         string `json:"app_id"`
	Name          string `json:"name"`
	DeveloperName string `json:"developer_name"`
	IconURL       string `json:"icon_url,omitempty"`
	Verified      bool   `json:"verified"`
}

// ConsentDescriptor is the authorize endpoint's response: everything the
// consent UI needs to render the approval screen.
type ConsentDescriptor struct {
	RequestID string            `json:"request_id"`
	MiniApp   MiniAppDescriptor `json:"mini_app"`
	Scopes    []ScopeDescriptor `json:"scopes"`
	State     string            `json:"state,omitempty"`
	ExpiresIn int               `json:"expires_in"`
}

// ConsentInput is the user's consent decision.
type ConsentInput struct {
	RequestID      string   `json:"request_id" binding:"required"`
	SessionToken   string   `json:"-"`
	Approve        bool     `json:"approve"`
	ApprovedScopes []string `json:"approved_scopes,omitempty"`
}

// ConsentResult carries the redirect the client is sent back with.
type ConsentResult struct {
	RedirectURI string `json:"redirect_uri"`
	Code        string `json:"code,omitempty"`
	State       string `json:"state,omitempty"`
	Error       string `json:"error,omitempty"`
}

// TokenInput is a parsed /token request, covering all three grant types.
type TokenInput struct {
	GrantType    string `form:"grant_type" json:"grant_type"`
	ClientID     string `form:"client_id" json:"client_id"`
	Code         string `form:"code" json:"code"`
	RedirectURI  string `form:"redirect_uri" json:"redirect_uri"`
	CodeVerifier string `form:"code_verifier" json:"code_verifier"`
	RefreshToken string `form:"refresh_token" json:"refresh_token"`
	DeviceCode   string `form:"device_code" json:"device_code"`
}

// TokenResponse is the RFC 6749 token endpoint response, extended with the
// subject and wallet reference the token was minted for. WalletID is empty
// when the grant carries no wallet scopes.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
	UserID       string `json:"user_id"`
	WalletID     string `json:"wallet_id"`
}

// DeviceStartInput starts a device authorization flow.
type DeviceStartInput struct {
	ClientID string `form:"client_id" json:"client_id"`
	Scope    string `form:"scope" json:"scope"`
}

// DeviceStartResponse is the RFC 8628 device authorization response.
type DeviceStartResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

// DeviceVerifyInput is the user's decision on a device flow session.
type DeviceVerifyInput struct {
	UserCode       string   `json:"user_code" binding:"required"`
	SessionToken   string   `json:"-"`
	Approve        bool     `json:"approve"`
	ApprovedScopes []string `json:"approved_scopes,omitempty"`
}

// DeviceVerifyResponse reports the recorded decision and the client the
// device flow belongs to, for display.
type DeviceVerifyResponse struct {
	Status  string            `json:"status"`
	MiniApp MiniAppDescriptor `json:"mini_app"`
	Scopes  []ScopeDescriptor `json:"scopes"`
}

// RevokeInput revokes scopes for a (subject, client) pair. An empty scope
// list revokes everything granted to the pair.
type RevokeInput struct {
	Subject  string   `json:"subject" binding:"required"`
	ClientID string   `json:"client_id" binding:"required"`
	Scopes   []string `json:"scopes,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

// RevokeResult reports what a revocation actually did.
type RevokeResult struct {
	RevokedScopes          []string `json:"revoked_scopes"`
	InvalidatedTokensCount int      `json:"invalidated_tokens_count"`
	RevocationEventID      string   `json:"revocation_event_id"`
}

// CollaboratorEvent is the payload of an inbound collaborator webhook.
type CollaboratorEvent struct {
	Event    string   `json:"event"`
	Subject  string   `json:"subject"`
	ClientID string   `json:"client_id,omitempty"`
	Scopes   []string `json:"scopes,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

// WebhookAck is returned to the collaborator after processing.
type WebhookAck struct {
	Received  bool   `json:"received"`
	Duplicate bool   `json:"duplicate,omitempty"`
	EventID   string `json:"event_id,omitempty"`
}
