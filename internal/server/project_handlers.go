package server

import (
	"net/http"

	"github.com/collabforge/backend/internal/projects"
	"github.com/gin-gonic/gin"
)

type createProjectPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type inviteRequestPayload struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (h *httpHandler) handleListProjects(c *gin.Context) {
	results, err := h.projects.ListForUser(c.Request.Context(), h.currentUserID(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *httpHandler) handleCreateProject(c *gin.Context) {
	var request createProjectPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "project name is required"})
		return
	}

	project, err := h.projects.Create(c.Request.Context(), h.currentUserID(c), request.Name, request.Description)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

// handleGetProject requires membership: reads are gated the same way as
// every other project access.
func (h *httpHandler) handleGetProject(c *gin.Context) {
	projectID := c.Param("projectId")
	role, err := h.projects.ResolveRole(c.Request.Context(), projectID, h.currentUserID(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if !role.CanRead() {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	project, err := h.projects.Get(c.Request.Context(), projectID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *httpHandler) handleInvite(c *gin.Context) {
	var request inviteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invitee email is required"})
		return
	}
	role, ok := projects.ParseAssignableRole(request.Role)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}

	invitee, err := h.users.GetByEmail(c.Request.Context(), request.Email)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	projectID := c.Param("projectId")
	if err := h.projects.Invite(c.Request.Context(), projectID, h.currentUserID(c), invitee.ID, role); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "collaborator added", "userId": invitee.ID, "role": string(role)})
}
