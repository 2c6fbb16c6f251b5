package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tweenim/capauth/internal/application/dto"
	"github.com/tweenim/capauth/internal/infrastructure/monitoring"
	"github.com/tweenim/capauth/pkg/constants"
	apperrors "github.com/tweenim/capauth/pkg/errors"
	"github.com/tweenim/capauth/pkg/logger"
)

// DeviceHandler serves the RFC 8628 device authorization endpoints.
type DeviceHandler struct {
	device  DeviceFlow
	metrics *monitoring.Metrics
	log     logger.Logger
}

// NewDeviceHandler creates the handler.
func NewDeviceHandler(device DeviceFlow, metrics *monitoring.Metrics, log logger.Logger) *DeviceHandler {
	return &DeviceHandler{
		device:  device,
		metrics: metrics,
		log:     log.WithComponent("device_handler"),
	}
}

// Start handles POST /device/code.
func (h *DeviceHandler) Start(c *gin.Context) {
	var in dto.DeviceStartInput
	if err := c.ShouldBind(&in); err != nil {
		respondError(c, apperrors.ErrInvalidRequest(err.Error()))
		return
	}

	resp, err := h.device.Start(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, resp)
}

// Token handles POST /device/token, the device's polling endpoint. The same
// grant is also reachable through POST /token.
func (h *DeviceHandler) Token(c *gin.Context) {
	var in dto.TokenInput
	if err := c.ShouldBind(&in); err != nil {
		respondError(c, apperrors.ErrInvalidRequest(err.Error()))
		return
	}
	if in.GrantType != constants.GrantTypeDeviceCode {
		respondError(c, apperrors.ErrUnsupportedGrantType(in.GrantType))
		return
	}

	resp, err := h.device.Poll(c.Request.Context(), in)
	if err != nil {
		h.metrics.RecordDevicePoll(string(apperrors.CodeOf(err)))
		respondError(c, err)
		return
	}
	h.metrics.RecordDevicePoll("ok")
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, resp)
}

// Verify handles POST /device/verify: the signed-in user approves or denies
// the session named by the user code.
func (h *DeviceHandler) Verify(c *gin.Context) {
	var in dto.DeviceVerifyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, apperrors.ErrInvalidRequest(err.Error()))
		return
	}
	in.SessionToken = sessionToken(c)

	resp, err := h.device.Verify(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
