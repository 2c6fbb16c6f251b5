// Package scope holds the canonical scope vocabularies and the validation
// rules that gate every token issuance. Two disjoint vocabularies exist:
// platform scopes (capability verbs on platform resources) and
// identity-provider scopes (federated, prefix-matched). All tables are
// static package-level data; nothing here allocates per call.
package scope

import (
	"github.com/tweenim/capauth/pkg/utils"
)

// Sensitivity classifies how much damage a scope can do.
type Sensitivity string

const (
	SensitivityLow      Sensitivity = "low"
	SensitivityMedium   Sensitivity = "medium"
	SensitivityHigh     Sensitivity = "high"
	SensitivityCritical Sensitivity = "critical"
)

// Status is the per-scope outcome of a validation pass.
type Status string

const (
	// StatusApproved means the scope may be granted under session-level
	// consent.
	StatusApproved Status = "approved"
	// StatusPendingApproval means the scope needs explicit user confirmation
	// before it can be granted.
	StatusPendingApproval Status = "pending_approval"
	// StatusDenied means the scope is outside the client's registered
	// manifest and can never be granted on this request.
	StatusDenied Status = "denied"
)

// Domain selects one downstream scope vocabulary for FormatFor.
type Domain string

const (
	// DomainPlatform selects platform capability scopes.
	DomainPlatform Domain = "platform"
	// DomainIdentity selects identity-provider scopes.
	DomainIdentity Domain = "identity"
)

// platformScopes is the closed set of platform capability scopes.
var platformScopes = map[string]struct{}{
	"user:read":          {},
	"user:read:extended": {},
	"user:read:contacts": {},
	"wallet:balance":     {},
	"wallet:pay":         {},
	"wallet:history":     {},
	"wallet:request":     {},
	"messaging:send":     {},
	"messaging:read":     {},
	"storage:read":       {},
	"storage:write":      {},
	"webhook:send":       {},
	"room:create":        {},
	"room:invite":        {},
}

// identityScopes is the known identity-provider scope set. Scopes under the
// identity URN prefixes are also accepted even when not listed here.
var identityScopes = map[string]struct{}{
	"openid": {},
	"urn:matrix:org.matrix.msc2967.client:api:*":    {},
	"urn:matrix:org.matrix.msc2967.client:device:*": {},
	"urn:synapse:admin:*":                           {},
	"urn:mas:admin":                                 {},
}

var identityPrefixes = []string{"urn:matrix:", "urn:synapse:", "urn:mas:"}

// adminScopes are identity scopes that grant administrative access.
var adminScopes = map[string]struct{}{
	"urn:synapse:admin:*": {},
	"urn:mas:admin":       {},
}

// sensitiveScopes require explicit user consent on the consent screen.
var sensitiveScopes = map[string]struct{}{
	"wallet:pay":         {},
	"wallet:history":     {},
	"messaging:send":     {},
	"messaging:read":     {},
	"room:create":        {},
	"room:invite":        {},
	"user:read:contacts": {},
}

// criticalScopes additionally require per-use confirmation; stored grants
// never cover them.
var criticalScopes = map[string]struct{}{
	"wallet:pay": {},
}

var mediumScopes = map[string]struct{}{
	"user:read:extended": {},
	"wallet:balance":     {},
}

var scopeDescriptions = map[string]string{
	"user:read":          "Read basic profile (name, avatar)",
	"user:read:extended": "Read extended profile (status, bio)",
	"user:read:contacts": "Read friend list",
	"wallet:balance":     "Read wallet balance",
	"wallet:pay":         "Process payments",
	"wallet:history":     "Read transaction history",
	"wallet:request":     "Request payments from users",
	"messaging:send":     "Send messages to rooms",
	"messaging:read":     "Read message history",
	"storage:read":       "Read mini-app storage",
	"storage:write":      "Write to mini-app storage",
	"webhook:send":       "Receive webhook callbacks",
	"room:create":        "Create new rooms",
	"room:invite":        "Invite users to rooms",
	"openid":             "OpenID Connect authentication",
	"urn:matrix:org.matrix.msc2967.client:api:*": "Full Matrix client API access",
}

var scopeNotes = map[string]string{
	"wallet:pay":         "You'll confirm each payment individually",
	"user:read:contacts": "Only contacts who have also authorized this app",
}

// IsPlatformScope reports whether s is a known platform scope.
func IsPlatformScope(s string) bool {
	_, ok := platformScopes[s]
	return ok
}

// IsIdentityScope reports whether s belongs to the identity-provider
// vocabulary, either listed or under one of the identity URN prefixes.
func IsIdentityScope(s string) bool {
	if s == "" {
		return false
	}
	if _, ok := identityScopes[s]; ok {
		return true
	}
	for _, p := range identityPrefixes {
		if len(s) >= len(p) && s[:len(p)] == p {
			return true
		}
	}
	return false
}

// IsKnownScope reports whether s belongs to either vocabulary.
func IsKnownScope(s string) bool {
	return IsPlatformScope(s) || IsIdentityScope(s)
}

// IsAdminScope reports whether s grants identity-provider admin access.
func IsAdminScope(s string) bool {
	_, ok := adminScopes[s]
	return ok
}

// IsSensitive reports whether s needs explicit user consent.
func IsSensitive(s string) bool {
	_, ok := sensitiveScopes[s]
	return ok
}

// IsCritical reports whether s needs per-use confirmation.
func IsCritical(s string) bool {
	_, ok := criticalScopes[s]
	return ok
}

// Classify returns the sensitivity tier for a scope. Critical beats high:
// wallet:pay is in the sensitive set but classifies critical.
func Classify(s string) Sensitivity {
	if _, ok := criticalScopes[s]; ok {
		return SensitivityCritical
	}
	if _, ok := sensitiveScopes[s]; ok {
		return SensitivityHigh
	}
	if _, ok := mediumScopes[s]; ok {
		return SensitivityMedium
	}
	return SensitivityLow
}

// Describe returns the human-readable description shown on the consent
// screen, or the scope itself when no description exists.
func Describe(s string) string {
	if d, ok := scopeDescriptions[s]; ok {
		return d
	}
	return s
}

// Note returns the extra consent-screen note for a scope, if any.
func Note(s string) string { return scopeNotes[s] }

// Decision is the per-scope result of Validate.
type Decision struct {
	Scope               string      `json:"scope"`
	Status              Status      `json:"status"`
	Sensitivity         Sensitivity `json:"sensitivity"`
	RequiresUserConsent bool        `json:"requires_user_consent"`
	Reason              string      `json:"reason,omitempty"`
}

// Result groups Validate decisions by outcome.
type Result struct {
	Approved        []Decision
	PendingApproval []Decision
	Denied          []Decision
}

// Denies reports whether any requested scope was denied.
func (r *Result) Denies() bool { return len(r.Denied) > 0 }

// GrantableScopes returns the approved plus pending scope names in request
// order.
func (r *Result) GrantableScopes() []string {
	out := make([]string, 0, len(r.Approved)+len(r.PendingApproval))
	for _, d := range r.Approved {
		out = append(out, d.Scope)
	}
	for _, d := range r.PendingApproval {
		out = append(out, d.Scope)
	}
	return out
}

// Validate checks each requested scope against the client's registered
// manifest. Any scope absent from the manifest is denied, whether or not it
// is globally well-formed: registration is the escalation guard and is never
// bypassed. Known sensitive scopes land in PendingApproval, the rest of the
// registered known scopes in Approved.
func Validate(requested, registered []string) *Result {
	reg := make(map[string]struct{}, len(registered))
	for _, s := range registered {
		reg[s] = struct{}{}
	}

	res := &Result{}
	for _, s := range requested {
		if _, ok := reg[s]; !ok {
			res.Denied = append(res.Denied, Decision{
				Scope:  s,
				Status: StatusDenied,
				Reason: "not_registered",
			})
			continue
		}
		if !IsKnownScope(s) {
			res.Denied = append(res.Denied, Decision{
				Scope:  s,
				Status: StatusDenied,
				Reason: "unknown_scope",
			})
			continue
		}
		d := Decision{
			Scope:               s,
			Sensitivity:         Classify(s),
			RequiresUserConsent: IsSensitive(s),
		}
		if d.RequiresUserConsent {
			d.Status = StatusPendingApproval
			res.PendingApproval = append(res.PendingApproval, d)
		} else {
			d.Status = StatusApproved
			res.Approved = append(res.Approved, d)
		}
	}
	return res
}

// FormatFor projects scopes onto one downstream vocabulary, preserving
// request order, and joins them for the wire.
func FormatFor(domain Domain, scopes []string) string {
	var keep func(string) bool
	switch domain {
	case DomainIdentity:
		keep = IsIdentityScope
	default:
		keep = IsPlatformScope
	}
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if keep(s) {
			out = append(out, s)
		}
	}
	return utils.JoinScopes(out)
}

// Separate splits scopes into platform and identity groups, preserving
// order within each.
func Separate(scopes []string) (platform, identity []string) {
	for _, s := range scopes {
		switch {
		case IsPlatformScope(s):
			platform = append(platform, s)
		case IsIdentityScope(s):
			identity = append(identity, s)
		}
	}
	return platform, identity
}
