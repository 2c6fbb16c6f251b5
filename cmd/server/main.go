package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	appservice "github.com/tweenim/capauth/internal/application/service"
	"github.com/tweenim/capauth/internal/config"
	domainsvc "github.com/tweenim/capauth/internal/domain/service"
	"github.com/tweenim/capauth/internal/domain/token"
	"github.com/tweenim/capauth/internal/infrastructure/crypto"
	"github.com/tweenim/capauth/internal/infrastructure/identity"
	"github.com/tweenim/capauth/internal/infrastructure/kafka"
	"github.com/tweenim/capauth/internal/infrastructure/monitoring"
	"github.com/tweenim/capauth/internal/infrastructure/postgres"
	redisinfra "github.com/tweenim/capauth/internal/infrastructure/redis"
	"github.com/tweenim/capauth/internal/infrastructure/wallet"
	"github.com/tweenim/capauth/internal/infrastructure/webhook"
	httpiface "github.com/tweenim/capauth/internal/interfaces/http"
	"github.com/tweenim/capauth/internal/interfaces/http/handlers"
	"github.com/tweenim/capauth/internal/interfaces/http/middleware"
	"github.com/tweenim/capauth/pkg/breaker"
	"github.com/tweenim/capauth/pkg/logger"
)

func main() {
	cfg, v, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLogger, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	ctx := context.Background()

	tracing, err := monitoring.NewTracing(&cfg.Tracing, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "failed to initialize tracing", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.Shutdown(shutdownCtx)
	}()

	metrics := monitoring.NewMetrics()

	redisClient, err := redisinfra.NewClient(&cfg.Redis, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "failed to connect to redis", err)
	}
	defer redisClient.Close()

	db, err := postgres.NewDB(&cfg.Postgres)
	if err != nil {
		appLogger.Fatal(ctx, "failed to connect to postgres", err)
	}
	if err := postgres.Migrate(db); err != nil {
		appLogger.Fatal(ctx, "failed to run migrations", err)
	}

	keyManager, err := buildKeyManager(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "failed to load signing keys", err)
	}

	breakers := breaker.NewRegistry(
		breaker.WithFailureThreshold(cfg.Breaker.FailureThreshold),
		breaker.WithRecoveryTimeout(cfg.Breaker.RecoveryTimeout),
		breaker.WithHalfOpenQuota(cfg.Breaker.HalfOpenQuota),
		breaker.WithStateChangeHook(metrics.BreakerStateHook()),
	)

	// Stores.
	authRequests := redisinfra.NewAuthRequestStore(redisClient)
	authCodes := redisinfra.NewAuthCodeStore(redisClient)
	deviceSessions := redisinfra.NewDeviceAuthStore(redisClient)
	refreshTokens := redisinfra.NewRefreshTokenStore(redisClient)
	revocationLedger := redisinfra.NewRevocationLedger(redisClient)
	idempotency := redisinfra.NewIdempotencyStore(redisClient)
	registry := postgres.NewMiniAppRegistry(db)
	grants := postgres.NewGrantStore(db)
	auditRepo := postgres.NewAuditRepository(db)

	// Downstream clients.
	identityClient := identity.NewClient(&cfg.Identity, breakers, appLogger)
	walletClient := wallet.NewClient(&cfg.Wallet, breakers, appLogger)
	webhookDispatcher := webhook.NewDispatcher(appLogger)

	var auditPublisher domainsvc.AuditPublisher = kafka.NoopPublisher{}
	if cfg.Kafka.Enabled {
		auditPublisher = kafka.NewAuditPublisher(&cfg.Kafka, appLogger)
	}
	defer auditPublisher.Close()

	// Domain and application services.
	issuer := token.NewIssuer(keyManager, revocationLedger, cfg.Token.Issuer, appLogger,
		token.WithTTL(cfg.Token.AccessTokenTTL))
	audit := appservice.NewAuditTrail(auditRepo, auditPublisher, appLogger)
	assembler := appservice.NewTokenAssembler(issuer, refreshTokens, walletClient, appLogger)
	authFlow := appservice.NewAuthFlowService(registry, authRequests, authCodes, grants,
		refreshTokens, identityClient, assembler, audit, appLogger)
	deviceFlow := appservice.NewDeviceFlowService(registry, deviceSessions, grants,
		identityClient, assembler, audit, cfg.OAuth.VerificationURI, appLogger)
	revocation := appservice.NewRevocationService(revocationLedger, grants, refreshTokens,
		registry, identityClient, webhookDispatcher, idempotency, audit, appLogger)

	// HTTP layer.
	router := httpiface.NewRouter(
		cfg,
		appLogger,
		handlers.NewHealthHandler(redisClient, db, appLogger),
		handlers.NewOAuthHandler(authFlow, deviceFlow, identityClient, metrics, appLogger),
		handlers.NewDeviceHandler(deviceFlow, metrics, appLogger),
		handlers.NewRevocationHandler(revocation, cfg.Webhook.Secret, metrics, appLogger),
		handlers.NewJWKSHandler(keyManager),
		[]gin.HandlerFunc{
			middleware.RequestID(),
			middleware.AccessLog(appLogger),
			middleware.HTTPMetrics(metrics),
		},
		[]gin.HandlerFunc{
			middleware.CapabilityAuth(issuer, metrics, appLogger),
			middleware.RequireScope("urn:mas:admin"),
		},
		middleware.Idempotency(idempotency, appLogger),
	)

	config.Watch(v, func(next *config.Config) {
		appLogger.Info(ctx, "configuration reloaded", logger.Fields{"log_level": next.Log.Level})
	})

	errCh := make(chan error, 1)
	go func() { errCh <- router.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			appLogger.Fatal(ctx, "http server failed", err)
		}
	case sig := <-quit:
		appLogger.Info(ctx, "shutting down", logger.Fields{"signal": sig.String()})
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := router.Stop(shutdownCtx); err != nil {
			appLogger.Error(ctx, "graceful shutdown failed", err)
		}
	}
}

// buildKeyManager loads signing key material from Vault when enabled, from
// config otherwise. With neither present a throwaway development key is
// generated; tokens signed with it die with the process.
func buildKeyManager(ctx context.Context, cfg *config.Config, log logger.Logger) (*crypto.Manager, error) {
	if cfg.Vault.Enabled {
		source, err := crypto.NewVaultKeySource(&cfg.Vault, log)
		if err != nil {
			return nil, err
		}
		material, err := source.Load(ctx)
		if err != nil {
			return nil, err
		}
		return crypto.NewManager(material)
	}

	pemStr := cfg.Token.PrivateKeyPEM
	if pemStr == "" {
		log.Warn(ctx, "no signing key configured, generating an ephemeral development key")
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, err
		}
		pemStr = crypto.EncodePrivateKeyPEM(key)
	}
	return crypto.NewManager(crypto.KeyMaterial{
		ActiveKeyID:        cfg.Token.ActiveKeyID,
		PrivateKeyPEM:      pemStr,
		PreviousPublicKeys: cfg.Token.PreviousPublicKeys,
	})
}
