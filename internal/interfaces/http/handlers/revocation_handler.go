package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tweenim/capauth/internal/application/dto"
	"github.com/tweenim/capauth/internal/infrastructure/monitoring"
	"github.com/tweenim/capauth/internal/infrastructure/webhook"
	"github.com/tweenim/capauth/pkg/constants"
	apperrors "github.com/tweenim/capauth/pkg/errors"
	"github.com/tweenim/capauth/pkg/logger"
)

// maxWebhookBody caps inbound webhook payloads.
const maxWebhookBody = 1 << 20

// RevocationHandler serves the revocation endpoint and the inbound
// collaborator webhook.
type RevocationHandler struct {
	revoker       RevocationFlow
	webhookSecret string
	metrics       *monitoring.Metrics
	log           logger.Logger
	now           func() time.Time
}

// NewRevocationHandler creates the handler. webhookSecret verifies inbound
// collaborator webhook signatures.
func NewRevocationHandler(revoker RevocationFlow, webhookSecret string, metrics *monitoring.Metrics, log logger.Logger) *RevocationHandler {
	return &RevocationHandler{
		revoker:       revoker,
		webhookSecret: webhookSecret,
		metrics:       metrics,
		log:           log.WithComponent("revocation_handler"),
		now:           time.Now,
	}
}

// Revoke handles POST /revoke.
func (h *RevocationHandler) Revoke(c *gin.Context) {
	var in dto.RevokeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, apperrors.ErrInvalidRequest(err.Error()))
		return
	}

	res, err := h.revoker.Revoke(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	h.metrics.RecordRevocation("api")
	c.JSON(http.StatusOK, gin.H{
		"success":                  true,
		"revoked_scopes":           res.RevokedScopes,
		"invalidated_tokens_count": res.InvalidatedTokensCount,
		"revocation_event_id":      res.RevocationEventID,
	})
}

// CollaboratorWebhook handles POST /webhooks/collaborator. The body is read
// raw so the signature covers exactly the bytes sent.
func (h *RevocationHandler) CollaboratorWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		respondError(c, apperrors.ErrInvalidRequest("failed to read request body"))
		return
	}

	err = webhook.VerifySignature(
		h.webhookSecret,
		c.GetHeader(constants.WebhookTimestampHeader),
		c.GetHeader(constants.WebhookSignatureHeader),
		body,
		h.now(),
	)
	if err != nil {
		h.log.Warn(c.Request.Context(), "rejected collaborator webhook", logger.Fields{
			"error":  err.Error(),
			"client": c.ClientIP(),
		})
		respondError(c, err)
		return
	}

	ack, err := h.revoker.HandleCollaboratorWebhook(c.Request.Context(), c.GetHeader(constants.WebhookIdempotencyHeader), body)
	if err != nil {
		respondError(c, err)
		return
	}
	if ack.EventID != "" {
		h.metrics.RecordRevocation("collaborator_webhook")
	}
	c.JSON(http.StatusOK, ack)
}
