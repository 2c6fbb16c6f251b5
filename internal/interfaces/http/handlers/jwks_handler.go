package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tweenim/capauth/internal/domain/token"
	"github.com/tweenim/capauth/internal/infrastructure/crypto"
)

// JWKSHandler publishes the verification keys so collaborators can validate
// capability tokens locally.
type JWKSHandler struct {
	keys token.KeyManager
}

// NewJWKSHandler creates the handler.
func NewJWKSHandler(keys token.KeyManager) *JWKSHandler {
	return &JWKSHandler{keys: keys}
}

// GetJWKS handles GET /.well-known/jwks.json. The set includes retired keys
// until every token they signed has expired.
func (h *JWKSHandler) GetJWKS(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=300")
	c.JSON(http.StatusOK, crypto.BuildJWKS(h.keys.PublicKeys()))
}
