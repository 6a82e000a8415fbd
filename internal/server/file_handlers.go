package server

import (
	"net/http"

	"github.com/collabforge/backend/internal/files"
	"github.com/collabforge/backend/internal/realtime"
	"github.com/gin-gonic/gin"
)

type createFilePayload struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	ParentID *string `json:"parentFolderId"`
	Language string  `json:"language"`
	Content  string  `json:"content"`
}

type updateFilePayload struct {
	Name     *string `json:"name"`
	ParentID *string `json:"parentFolderId"`
	Content  *string `json:"content"`
	Language *string `json:"language"`
}

type revertRequestPayload struct {
	VersionID string `json:"versionId"`
}

func (h *httpHandler) handleCreateFile(c *gin.Context) {
	var request createFilePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file name is required"})
		return
	}

	node, err := h.files.CreateNode(c.Request.Context(), h.currentUserID(c), files.CreateNodeInput{
		ProjectID: c.Param("projectId"),
		Name:      request.Name,
		Type:      files.NodeType(request.Type),
		ParentID:  request.ParentID,
		Language:  request.Language,
		Content:   request.Content,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	h.hub.BroadcastToProject(node.ProjectID, realtime.EventFileCreated, node)
	c.JSON(http.StatusCreated, node)
}

func (h *httpHandler) handleProjectTree(c *gin.Context) {
	nodes, err := h.files.ProjectTree(c.Request.Context(), h.currentUserID(c), c.Param("projectId"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, nodes)
}

func (h *httpHandler) handleFolderContents(c *gin.Context) {
	folderID := c.Param("folderId")
	if folderID == "root" {
		folderID = ""
	}
	nodes, err := h.files.FolderContents(c.Request.Context(), h.currentUserID(c), c.Param("projectId"), folderID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, nodes)
}

func (h *httpHandler) handleGetFile(c *gin.Context) {
	node, err := h.files.Get(c.Request.Context(), h.currentUserID(c), c.Param("fileId"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, node)
}

func (h *httpHandler) handleUpdateFile(c *gin.Context) {
	var request updateFilePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	node, err := h.files.Update(c.Request.Context(), h.currentUserID(c), c.Param("fileId"), files.UpdateNodeInput{
		Name:     request.Name,
		ParentID: request.ParentID,
		Content:  request.Content,
		Language: request.Language,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	h.hub.BroadcastToProject(node.ProjectID, realtime.EventFileUpdated, node)
	c.JSON(http.StatusOK, node)
}

func (h *httpHandler) handleDeleteFile(c *gin.Context) {
	node, err := h.files.Delete(c.Request.Context(), h.currentUserID(c), c.Param("fileId"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	h.hub.BroadcastToProject(node.ProjectID, realtime.EventFileDeleted, gin.H{"fileId": node.ID})
	c.JSON(http.StatusOK, gin.H{"message": "file deleted"})
}

func (h *httpHandler) handleListVersions(c *gin.Context) {
	versions, err := h.files.ListVersions(c.Request.Context(), h.currentUserID(c), c.Param("fileId"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, versions)
}

func (h *httpHandler) handleRevert(c *gin.Context) {
	var request revertRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.VersionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "versionId is required"})
		return
	}

	node, err := h.files.Revert(c.Request.Context(), h.currentUserID(c), c.Param("fileId"), request.VersionID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	h.hub.BroadcastToProject(node.ProjectID, realtime.EventFileUpdated, node)
	c.JSON(http.StatusOK, gin.H{"file": node})
}
