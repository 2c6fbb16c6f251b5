package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func privatePEM(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
}

func publicPEM(t *testing.T, key *rsa.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func TestManagerSigningAndVerification(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	mgr, err := NewManager(KeyMaterial{
		ActiveKeyID:   "key-1",
		PrivateKeyPEM: privatePEM(t, key),
	})
	require.NoError(t, err)

	kid, priv, err := mgr.SigningKey()
	require.NoError(t, err)
	assert.Equal(t, "key-1", kid)
	assert.True(t, priv.Equal(key))

	pub, err := mgr.VerificationKey("key-1")
	require.NoError(t, err)
	assert.True(t, pub.Equal(&key.PublicKey))

	_, err = mgr.VerificationKey("key-0")
	assert.Error(t, err)
}

func TestManagerRotationKeepsPreviousKeys(t *testing.T) {
	oldKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	newKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	mgr, err := NewManager(KeyMaterial{ActiveKeyID: "key-1", PrivateKeyPEM: privatePEM(t, oldKey)})
	require.NoError(t, err)

	require.NoError(t, mgr.Reload(KeyMaterial{
		ActiveKeyID:        "key-2",
		PrivateKeyPEM:      privatePEM(t, newKey),
		PreviousPublicKeys: map[string]string{"key-1": publicPEM(t, &oldKey.PublicKey)},
	}))

	kid, _, err := mgr.SigningKey()
	require.NoError(t, err)
	assert.Equal(t, "key-2", kid)

	// Tokens signed under the retired kid still resolve a key.
	pub, err := mgr.VerificationKey("key-1")
	require.NoError(t, err)
	assert.True(t, pub.Equal(&oldKey.PublicKey))
}

func TestManagerReloadFailureKeepsOldSet(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	mgr, err := NewManager(KeyMaterial{ActiveKeyID: "key-1", PrivateKeyPEM: privatePEM(t, key)})
	require.NoError(t, err)

	require.Error(t, mgr.Reload(KeyMaterial{ActiveKeyID: "key-2", PrivateKeyPEM: "garbage"}))

	kid, _, err := mgr.SigningKey()
	require.NoError(t, err)
	assert.Equal(t, "key-1", kid)
}

func TestParsePKCS8PrivateKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pemStr := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))

	parsed, err := ParsePrivateKeyPEM(pemStr)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(key))
}

func TestBuildJWKS(t *testing.T) {
	k1, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	k2, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	doc := BuildJWKS(map[string]*rsa.PublicKey{
		"key-2": &k2.PublicKey,
		"key-1": &k1.PublicKey,
	})

	require.Len(t, doc.Keys, 2)
	assert.Equal(t, "key-1", doc.Keys[0].Kid)
	assert.Equal(t, "key-2", doc.Keys[1].Kid)
	for _, k := range doc.Keys {
		assert.Equal(t, "RSA", k.Kty)
		assert.Equal(t, "sig", k.Use)
		assert.Equal(t, "RS256", k.Alg)
		assert.NotEmpty(t, k.N)
		assert.Equal(t, "AQAB", k.E)
	}
}
