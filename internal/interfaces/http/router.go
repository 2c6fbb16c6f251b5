// Package http assembles the Gin engine, routes and HTTP server lifecycle.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tweenim/capauth/internal/config"
	"github.com/tweenim/capauth/internal/interfaces/http/handlers"
	"github.com/tweenim/capauth/internal/interfaces/http/middleware"
	"github.com/tweenim/capauth/pkg/constants"
	"github.com/tweenim/capauth/pkg/logger"
)

// Router owns the Gin engine and the HTTP server lifecycle.
type Router struct {
	engine *gin.Engine
	config *config.Config
	log    logger.Logger
	server *http.Server

	health     *handlers.HealthHandler
	oauth      *handlers.OAuthHandler
	device     *handlers.DeviceHandler
	revocation *handlers.RevocationHandler
	jwks       *handlers.JWKSHandler

	// revokeAuth protects /revoke: capability auth plus the admin scope.
	revokeAuth []gin.HandlerFunc
	// idempotency replays duplicate requests on keyed endpoints.
	idempotency gin.HandlerFunc
	// observability is the request-id / logging / metrics chain.
	observability []gin.HandlerFunc
}

// NewRouter creates the router. SetupRoutes must be called before Start.
func NewRouter(
	cfg *config.Config,
	log logger.Logger,
	health *handlers.HealthHandler,
	oauth *handlers.OAuthHandler,
	device *handlers.DeviceHandler,
	revocation *handlers.RevocationHandler,
	jwks *handlers.JWKSHandler,
	observability []gin.HandlerFunc,
	revokeAuth []gin.HandlerFunc,
	idempotency gin.HandlerFunc,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	return &Router{
		engine:        gin.New(),
		config:        cfg,
		log:           log.WithComponent("router"),
		health:        health,
		oauth:         oauth,
		device:        device,
		revocation:    revocation,
		jwks:          jwks,
		observability: observability,
		revokeAuth:    revokeAuth,
		idempotency:   idempotency,
	}
}

// SetupRoutes registers middleware and routes on the engine.
func (r *Router) SetupRoutes() {
	r.engine.Use(gin.Recovery())
	r.engine.Use(r.observability...)

	r.engine.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Authorization",
			middleware.RequestIDHeader, handlers.SessionTokenHeader,
			constants.IdempotencyKeyHeader,
		},
		ExposeHeaders: []string{middleware.RequestIDHeader, middleware.ReplayedHeader},
		MaxAge:        12 * time.Hour,
	}))

	r.engine.GET("/health/live", r.health.Live)
	r.engine.GET("/health/ready", r.health.Ready)
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if r.config.Server.PprofEnabled {
		pprof.Register(r.engine)
	}

	r.engine.GET("/.well-known/jwks.json", r.jwks.GetJWKS)

	r.engine.GET("/authorize", r.oauth.Authorize)
	r.engine.GET("/consent", r.oauth.DescribeConsent)
	r.engine.POST("/consent", r.oauth.Consent)
	r.engine.POST("/token", r.oauth.Token)

	device := r.engine.Group("/device")
	{
		device.POST("/code", r.device.Start)
		device.POST("/token", r.device.Token)
		device.POST("/verify", r.device.Verify)
	}

	revoke := r.engine.Group("/revoke", r.revokeAuth...)
	revoke.POST("", r.idempotency, r.revocation.Revoke)

	// The collaborator webhook authenticates by signature, not bearer token;
	// idempotency is handled inside via the X-Tween-Idempotency-Key header.
	r.engine.POST("/webhooks/collaborator", r.revocation.CollaboratorWebhook)

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":             string(constants.ErrCodeNotFound),
			"error_description": "The requested resource was not found.",
		})
	})
}

// Start runs the HTTP server until Stop is called or the listener fails.
func (r *Router) Start() error {
	r.SetupRoutes()

	r.server = &http.Server{
		Addr:           r.config.Server.Addr(),
		Handler:        r.engine,
		ReadTimeout:    r.config.Server.ReadTimeout,
		WriteTimeout:   r.config.Server.WriteTimeout,
		IdleTimeout:    r.config.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	r.log.Info(context.Background(), "starting http server", logger.Fields{"addr": r.server.Addr})
	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (r *Router) Stop(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	r.log.Info(ctx, "stopping http server")
	return r.server.Shutdown(ctx)
}

// Engine exposes the engine for tests.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}
