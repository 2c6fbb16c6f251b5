package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/tweenim/capauth/pkg/logger"
)

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	redis *redis.Client
	db    *gorm.DB
	log   logger.Logger
}

// NewHealthHandler creates the handler.
func NewHealthHandler(redisClient *redis.Client, db *gorm.DB, log logger.Logger) *HealthHandler {
	return &HealthHandler{
		redis: redisClient,
		db:    db,
		log:   log.WithComponent("health"),
	}
}

// Live handles GET /health/live: the process is up.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles GET /health/ready: the process can serve traffic. Both
// stores must answer within the probe deadline.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true

	if err := h.redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	} else {
		checks["redis"] = "ok"
	}

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		checks["postgres"] = err.Error()
		healthy = false
	} else {
		checks["postgres"] = "ok"
	}

	if !healthy {
		h.log.Warn(ctx, "readiness check failed", logger.Fields{"checks": checks})
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
}
