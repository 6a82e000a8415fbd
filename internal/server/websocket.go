package server

import (
	"net/http"
	"strings"

	"github.com/collabforge/backend/internal/realtime"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// handleWebsocket authenticates the bearer credential presented at
// handshake time, then upgrades and hands the socket to the hub. Rejected
// connections receive a 401 and are never established; there is no
// anonymous realtime access.
func (h *httpHandler) handleWebsocket(c *gin.Context) {
	token := bearerFromRequest(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("websocket handshake rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.hub.ServeConn(c.Request.Context(), ws, realtime.Identity{
		UserID:      claims.UserID,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
	})
}

// bearerFromRequest accepts the credential either as a query parameter
// (browsers cannot set headers on websocket handshakes) or as a standard
// Authorization header.
func bearerFromRequest(c *gin.Context) string {
	if token := strings.TrimSpace(c.Query("token")); token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

func (h *httpHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == h.origin
}
