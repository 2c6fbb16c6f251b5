package crypto

import (
	"context"
	"fmt"

	vault "github.com/hashicorp/vault/api"

	"github.com/tweenim/capauth/internal/config"
	"github.com/tweenim/capauth/pkg/logger"
)

// VaultKeySource loads signing key material from Vault's KV v2 engine. The
// secret holds "active_key_id", "private_key_pem" and optionally
// "previous_public_keys" (a map of kid to public key PEM).
type VaultKeySource struct {
	client  *vault.Client
	mount   string
	keyPath string
	log     logger.Logger
}

// NewVaultKeySource connects to Vault with the configured address and token.
func NewVaultKeySource(cfg *config.VaultConfig, log logger.Logger) (*VaultKeySource, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("crypto: vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	mount := cfg.MountPath
	if mount == "" {
		mount = "secret"
	}
	return &VaultKeySource{
		client:  client,
		mount:   mount,
		keyPath: cfg.KeyPath,
		log:     log.WithComponent("vault_key_source"),
	}, nil
}

// Load fetches the key material from the configured secret path.
func (v *VaultKeySource) Load(ctx context.Context) (KeyMaterial, error) {
	secret, err := v.client.KVv2(v.mount).Get(ctx, v.keyPath)
	if err != nil {
		return KeyMaterial{}, fmt.Errorf("crypto: read vault secret %s: %w", v.keyPath, err)
	}
	if secret == nil || secret.Data == nil {
		return KeyMaterial{}, fmt.Errorf("crypto: vault secret %s is empty", v.keyPath)
	}

	m := KeyMaterial{
		ActiveKeyID:   stringField(secret.Data, "active_key_id"),
		PrivateKeyPEM: stringField(secret.Data, "private_key_pem"),
	}
	if m.ActiveKeyID == "" || m.PrivateKeyPEM == "" {
		return KeyMaterial{}, fmt.Errorf("crypto: vault secret %s missing active_key_id or private_key_pem", v.keyPath)
	}

	if prev, ok := secret.Data["previous_public_keys"].(map[string]interface{}); ok {
		m.PreviousPublicKeys = make(map[string]string, len(prev))
		for kid, raw := range prev {
			if pemStr, ok := raw.(string); ok {
				m.PreviousPublicKeys[kid] = pemStr
			}
		}
	}

	v.log.Info(ctx, "loaded signing keys from vault", logger.Fields{
		"active_kid":    m.ActiveKeyID,
		"previous_keys": len(m.PreviousPublicKeys),
	})
	return m, nil
}

func stringField(data map[string]interface{}, key string) string {
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}
