package server

import (
	"net/http"
	"time"

	"github.com/collabforge/backend/internal/projects"
	"github.com/gin-gonic/gin"
)

type createSharePayload struct {
	Role     string `json:"role"`
	TTLHours int    `json:"ttlHours"`
}

type joinSharePayload struct {
	Token string `json:"token"`
}

func (h *httpHandler) handleCreateShare(c *gin.Context) {
	var request createSharePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		request = createSharePayload{}
	}

	token, err := h.share.Create(
		c.Request.Context(),
		h.currentUserID(c),
		c.Param("projectId"),
		projects.Role(request.Role),
		time.Duration(request.TTLHours)*time.Hour,
	)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token.Token, "expiresAt": token.ExpiresAt})
}

func (h *httpHandler) handleValidateShare(c *gin.Context) {
	grant, err := h.share.Validate(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projectId": grant.ProjectID, "role": string(grant.Role)})
}

func (h *httpHandler) handleJoinShare(c *gin.Context) {
	var request joinSharePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
		return
	}

	result, err := h.share.Join(c.Request.Context(), h.currentUserID(c), c.Param("projectId"), request.Token)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if result.AlreadyMember {
		c.JSON(http.StatusOK, gin.H{"message": "already a collaborator", "projectId": result.ProjectID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "joined project", "projectId": result.ProjectID, "role": string(result.Role)})
}
