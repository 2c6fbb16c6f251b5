package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/tweenim/capauth/pkg/constants"
)

// Load reads configuration from an optional config file, environment
// variables prefixed CAPAUTH_, and built-in defaults, in ascending priority.
// The returned viper instance can be handed to Watch for hot reloads.
func Load() (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/capauth/")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("CAPAUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return &cfg, v, nil
}

// Watch re-reads the config file on change and delivers each valid new
// snapshot to onChange. Snapshots that fail validation are dropped.
func Watch(v *viper.Viper, onChange func(*Config)) {
	v.OnConfigChange(func(_ fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			return
		}
		if err := cfg.Validate(); err != nil {
			return
		}
		if onChange != nil {
			onChange(&cfg)
		}
	})
	v.WatchConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.pprof_enabled", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "capauth")
	v.SetDefault("postgres.database", "capauth")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)

	v.SetDefault("token.issuer", "https://auth.tween.im")
	v.SetDefault("token.active_key_id", "capauth-key-1")
	v.SetDefault("token.access_token_ttl", constants.CapabilityTokenTTL)
	v.SetDefault("token.refresh_token_ttl", constants.RefreshTokenTTL)

	v.SetDefault("oauth.auth_request_ttl", constants.AuthRequestTTL)
	v.SetDefault("oauth.auth_code_ttl", constants.AuthCodeTTL)
	v.SetDefault("oauth.device_auth_ttl", constants.DeviceAuthTTL)
	v.SetDefault("oauth.device_auth_interval", constants.DeviceAuthInterval)
	v.SetDefault("oauth.verification_uri", "https://auth.tween.im/device")

	v.SetDefault("breaker.failure_threshold", constants.BreakerFailureThreshold)
	v.SetDefault("breaker.recovery_timeout", constants.BreakerRecoveryTimeout)
	v.SetDefault("breaker.half_open_quota", constants.BreakerHalfOpenQuota)
	v.SetDefault("breaker.call_timeout", constants.DownstreamCallTimeout)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "capauth.audit")

	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.mount_path", "secret")
	v.SetDefault("vault.key_path", "capauth/signing-key")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", constants.ServiceName)
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("telemetry.metrics_enabled", true)
}
