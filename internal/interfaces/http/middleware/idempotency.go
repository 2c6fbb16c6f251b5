package middleware

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	domainsvc "github.com/tweenim/capauth/internal/domain/service"
	"github.com/tweenim/capauth/pkg/constants"
	apperrors "github.com/tweenim/capauth/pkg/errors"
	"github.com/tweenim/capauth/pkg/logger"
)

// ReplayedHeader marks a response served from the idempotency cache.
const ReplayedHeader = "X-Idempotent-Replayed"

// Idempotency deduplicates requests carrying an Idempotency-Key header. The
// first request claims the key with SETNX and has its response cached; any
// duplicate gets the cached response back verbatim. A duplicate arriving
// while the original is still in flight is rejected with 409 rather than
// processed twice.
//
// Requests without the header pass through untouched. A store outage fails
// open: losing deduplication is preferable to refusing all traffic.
func Idempotency(store domainsvc.IdempotencyStore, log logger.Logger) gin.HandlerFunc {
	log = log.WithComponent("idempotency")
	return func(c *gin.Context) {
		key := c.GetHeader(constants.IdempotencyKeyHeader)
		if key == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		storeKey := "http:" + c.FullPath() + ":" + key

		fresh, err := store.CheckAndSet(ctx, storeKey, constants.IdempotencyTTL)
		if err != nil {
			log.Warn(ctx, "idempotency check failed, continuing without dedup", logger.Fields{
				"error": err.Error(),
			})
			c.Next()
			return
		}
		if !fresh {
			status, body, err := store.GetResponse(ctx, storeKey)
			if err != nil {
				if apperrors.IsCode(err, constants.ErrCodeNotFound) {
					// Claimed but no response yet: the original request is
					// still being processed.
					c.AbortWithStatusJSON(http.StatusConflict, gin.H{
						"error":             string(constants.ErrCodeConflict),
						"error_description": "a request with this idempotency key is already in progress",
					})
					return
				}
				log.Warn(ctx, "idempotent replay lookup failed", logger.Fields{"error": err.Error()})
				c.Next()
				return
			}
			c.Header(ReplayedHeader, "true")
			c.Data(status, "application/json", body)
			c.Abort()
			return
		}

		buf := &bytes.Buffer{}
		c.Writer = &captureWriter{ResponseWriter: c.Writer, body: buf}
		c.Next()

		// Only successful outcomes are worth replaying; a 5xx should be
		// retried for real.
		status := c.Writer.Status()
		if status < http.StatusInternalServerError {
			if err := store.StoreResponse(ctx, storeKey, status, buf.Bytes(), constants.IdempotencyTTL); err != nil {
				log.Warn(ctx, "failed to cache idempotent response", logger.Fields{"error": err.Error()})
			}
		}
	}
}

type captureWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
