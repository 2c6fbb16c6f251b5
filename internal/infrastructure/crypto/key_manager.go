// Package crypto manages the RSA signing key material behind the token
// issuer. Keys arrive as PEM, either from static configuration or from
// Vault; rotation keeps previous public keys resolvable until tokens signed
// with them have aged out.
package crypto

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"sort"
	"sync"
)

// KeyMaterial is the raw PEM key set a key source produces.
type KeyMaterial struct {
	// ActiveKeyID is the kid written into every newly signed token.
	ActiveKeyID string

	// PrivateKeyPEM is the active signing key, PKCS#1 or PKCS#8 PEM.
	PrivateKeyPEM string

	// PreviousPublicKeys maps retired kids to their public key PEM. Tokens
	// signed under these kids still verify.
	PreviousPublicKeys map[string]string
}

// Manager holds parsed keys and serves the token issuer. Reload swaps the
// whole key set atomically, so rotation needs no restart.
type Manager struct {
	mu      sync.RWMutex
	kid     string
	private *rsa.PrivateKey
	public  map[string]*rsa.PublicKey
}

// NewManager parses the given material into a ready Manager.
func NewManager(m KeyMaterial) (*Manager, error) {
	mgr := &Manager{}
	if err := mgr.Reload(m); err != nil {
		return nil, err
	}
	return mgr, nil
}

// Reload replaces the active key set. On parse failure the previous set
// stays in place.
func (mgr *Manager) Reload(m KeyMaterial) error {
	if m.ActiveKeyID == "" {
		return fmt.Errorf("crypto: active key id is empty")
	}
	priv, err := ParsePrivateKeyPEM(m.PrivateKeyPEM)
	if err != nil {
		return fmt.Errorf("crypto: parse active private key: %w", err)
	}

	public := map[string]*rsa.PublicKey{m.ActiveKeyID: &priv.PublicKey}
	for kid, pemStr := range m.PreviousPublicKeys {
		pub, err := ParsePublicKeyPEM(pemStr)
		if err != nil {
			return fmt.Errorf("crypto: parse previous public key %q: %w", kid, err)
		}
		public[kid] = pub
	}

	mgr.mu.Lock()
	mgr.kid = m.ActiveKeyID
	mgr.private = priv
	mgr.public = public
	mgr.mu.Unlock()
	return nil
}

// SigningKey returns the active kid and private key.
func (mgr *Manager) SigningKey() (string, *rsa.PrivateKey, error) {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	if mgr.private == nil {
		return "", nil, fmt.Errorf("crypto: no signing key loaded")
	}
	return mgr.kid, mgr.private, nil
}

// VerificationKey resolves a public key by kid.
func (mgr *Manager) VerificationKey(kid string) (*rsa.PublicKey, error) {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	pub, ok := mgr.public[kid]
	if !ok {
		return nil, fmt.Errorf("crypto: unknown key id %q", kid)
	}
	return pub, nil
}

// PublicKeys returns a copy of every resolvable public key by kid.
func (mgr *Manager) PublicKeys() map[string]*rsa.PublicKey {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	out := make(map[string]*rsa.PublicKey, len(mgr.public))
	for kid, pub := range mgr.public {
		out[kid] = pub
	}
	return out
}

// ParsePrivateKeyPEM parses an RSA private key in PKCS#1 or PKCS#8 PEM form.
func ParsePrivateKeyPEM(pemStr string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA private key")
	}
	return key, nil
}

// ParsePublicKeyPEM parses an RSA public key in PKIX or PKCS#1 PEM form.
func ParsePublicKeyPEM(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if parsed, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if pub, ok := parsed.(*rsa.PublicKey); ok {
			return pub, nil
		}
		return nil, fmt.Errorf("not an RSA public key")
	}
	return x509.ParsePKCS1PublicKey(block.Bytes)
}

// EncodePrivateKeyPEM renders an RSA private key as PKCS#1 PEM.
func EncodePrivateKeyPEM(key *rsa.PrivateKey) string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
}

// JWK is one RSA public key in JSON Web Key form.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS is the document served at the JWKS endpoint.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// BuildJWKS renders the key set as a JWKS document, ordered by kid so the
// output is stable across requests.
func BuildJWKS(keys map[string]*rsa.PublicKey) JWKS {
	kids := make([]string, 0, len(keys))
	for kid := range keys {
		kids = append(kids, kid)
	}
	sort.Strings(kids)

	doc := JWKS{Keys: make([]JWK, 0, len(kids))}
	for _, kid := range kids {
		pub := keys[kid]
		doc.Keys = append(doc.Keys, JWK{
			Kty: "RSA",
			Use: "sig",
			Alg: "RS256",
			Kid: kid,
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	return doc
}
