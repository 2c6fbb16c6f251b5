// Package config holds the application configuration and its loader.
package config

import (
	"fmt"
	"time"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Token     TokenConfig     `mapstructure:"token"`
	OAuth     OAuthConfig     `mapstructure:"oauth"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Vault     VaultConfig     `mapstructure:"vault"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	PprofEnabled bool          `mapstructure:"pprof_enabled"`
}

func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type RedisConfig struct {
	Addr         string `mapstructure:"addr"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int    `mapstructure:"max_conns"`
}

func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// TokenConfig configures capability token minting and verification.
type TokenConfig struct {
	Issuer string `mapstructure:"issuer"`

	// ActiveKeyID names the signing key; it is emitted in the kid header.
	ActiveKeyID string `mapstructure:"active_key_id"`

	// PrivateKeyPEM is the active RSA signing key. When empty and Vault is
	// disabled, a development key is generated at startup.
	PrivateKeyPEM string `mapstructure:"private_key_pem"`

	// PreviousPublicKeys maps retired key ids to their public key PEMs, so
	// tokens signed before a rotation stay verifiable until they expire.
	PreviousPublicKeys map[string]string `mapstructure:"previous_public_keys"`

	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// OAuthConfig configures the authorization-code and device flows.
type OAuthConfig struct {
	AuthRequestTTL     time.Duration `mapstructure:"auth_request_ttl"`
	AuthCodeTTL        time.Duration `mapstructure:"auth_code_ttl"`
	DeviceAuthTTL      time.Duration `mapstructure:"device_auth_ttl"`
	DeviceAuthInterval time.Duration `mapstructure:"device_auth_interval"`

	// VerificationURI is where a user enters the device user code.
	VerificationURI string `mapstructure:"verification_uri"`
}

type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
	HalfOpenQuota    int           `mapstructure:"half_open_quota"`
	CallTimeout      time.Duration `mapstructure:"call_timeout"`
}

// IdentityConfig configures the external identity provider client.
type IdentityConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// WalletConfig configures the wallet/resource service client.
type WalletConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
}

type WebhookConfig struct {
	// Secret signs inbound collaborator webhooks addressed to this service.
	// Outbound webhooks are signed with each mini-app's registered secret.
	Secret string `mapstructure:"secret"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type VaultConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	MountPath string `mapstructure:"mount_path"`
	KeyPath   string `mapstructure:"key_path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

type TelemetryConfig struct {
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

// Validate checks essential configuration values.
func (c *Config) Validate() error {
	if c.Token.Issuer == "" {
		return fmt.Errorf("token.issuer must be set")
	}
	if c.Token.ActiveKeyID == "" {
		return fmt.Errorf("token.active_key_id must be set")
	}
	if c.OAuth.VerificationURI == "" {
		return fmt.Errorf("oauth.verification_uri must be set")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers must be set when kafka is enabled")
	}
	if c.Vault.Enabled && c.Vault.Address == "" {
		return fmt.Errorf("vault.address must be set when vault is enabled")
	}
	return nil
}
