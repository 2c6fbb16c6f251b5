package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		scope string
		want  Sensitivity
	}{
		{"wallet:pay", SensitivityCritical},
		{"wallet:history", SensitivityHigh},
		{"user:read:contacts", SensitivityHigh},
		{"messaging:send", SensitivityHigh},
		{"user:read:extended", SensitivityMedium},
		{"wallet:balance", SensitivityMedium},
		{"user:read", SensitivityLow},
		{"storage:read", SensitivityLow},
		{"storage:write", SensitivityLow},
		{"openid", SensitivityLow},
	}
	for _, tt := range tests {
		t.Run(tt.scope, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.scope))
		})
	}
}

func TestClassifyCriticalBeatsHigh(t *testing.T) {
	// wallet:pay is in the sensitive set but must classify critical.
	assert.True(t, IsSensitive("wallet:pay"))
	assert.Equal(t, SensitivityCritical, Classify("wallet:pay"))
}

func TestVocabulariesAreDisjoint(t *testing.T) {
	for s := range platformScopes {
		assert.False(t, IsIdentityScope(s), "platform scope %q matched identity vocabulary", s)
	}
	for s := range identityScopes {
		assert.False(t, IsPlatformScope(s), "identity scope %q matched platform vocabulary", s)
	}
}

func TestIsIdentityScopePrefixes(t *testing.T) {
	assert.True(t, IsIdentityScope("urn:matrix:org.matrix.msc2967.client:api:*"))
	assert.True(t, IsIdentityScope("urn:matrix:custom:thing"))
	assert.True(t, IsIdentityScope("urn:synapse:admin:users"))
	assert.True(t, IsIdentityScope("urn:mas:admin"))
	assert.False(t, IsIdentityScope("urn:other:thing"))
	assert.False(t, IsIdentityScope(""))
	assert.False(t, IsIdentityScope("wallet:pay"))
}

func TestValidateEscalationGuard(t *testing.T) {
	// wallet:pay is a perfectly valid platform scope, but it is not in this
	// client's registered manifest, so it must be denied outright.
	res := Validate(
		[]string{"user:read", "wallet:pay"},
		[]string{"user:read", "storage:read"},
	)

	require.Len(t, res.Approved, 1)
	assert.Equal(t, "user:read", res.Approved[0].Scope)
	require.Len(t, res.Denied, 1)
	assert.Equal(t, "wallet:pay", res.Denied[0].Scope)
	assert.Equal(t, "not_registered", res.Denied[0].Reason)
	assert.True(t, res.Denies())
}

func TestValidateUnknownScopeDenied(t *testing.T) {
	// Registered but not in any vocabulary: still denied.
	res := Validate([]string{"wallet:admin"}, []string{"wallet:admin"})
	require.Len(t, res.Denied, 1)
	assert.Equal(t, "unknown_scope", res.Denied[0].Reason)
}

func TestValidateSensitivePendingApproval(t *testing.T) {
	res := Validate(
		[]string{"user:read", "wallet:pay", "messaging:send"},
		[]string{"user:read", "wallet:pay", "messaging:send"},
	)

	require.Len(t, res.Approved, 1)
	assert.Equal(t, "user:read", res.Approved[0].Scope)

	require.Len(t, res.PendingApproval, 2)
	assert.Equal(t, "wallet:pay", res.PendingApproval[0].Scope)
	assert.Equal(t, SensitivityCritical, res.PendingApproval[0].Sensitivity)
	assert.True(t, res.PendingApproval[0].RequiresUserConsent)
	assert.Equal(t, "messaging:send", res.PendingApproval[1].Scope)
	assert.Equal(t, SensitivityHigh, res.PendingApproval[1].Sensitivity)

	assert.Equal(t, []string{"user:read", "wallet:pay", "messaging:send"}, res.GrantableScopes())
	assert.False(t, res.Denies())
}

func TestFormatForPreservesOrder(t *testing.T) {
	scopes := []string{"openid", "wallet:balance", "urn:matrix:org.matrix.msc2967.client:api:*", "user:read"}

	assert.Equal(t, "wallet:balance user:read", FormatFor(DomainPlatform, scopes))
	assert.Equal(t, "openid urn:matrix:org.matrix.msc2967.client:api:*", FormatFor(DomainIdentity, scopes))
}

func TestSeparate(t *testing.T) {
	platform, identity := Separate([]string{"user:read", "openid", "wallet:pay", "urn:mas:admin", "bogus"})
	assert.Equal(t, []string{"user:read", "wallet:pay"}, platform)
	assert.Equal(t, []string{"openid", "urn:mas:admin"}, identity)
}

func TestDescribeAndNote(t *testing.T) {
	assert.Equal(t, "Process payments", Describe("wallet:pay"))
	assert.Equal(t, "something:odd", Describe("something:odd"))
	assert.Equal(t, "You'll confirm each payment individually", Note("wallet:pay"))
	assert.Empty(t, Note("user:read"))
}
