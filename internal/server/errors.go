package server

import (
	"errors"
	"net/http"

	"github.com/collabforge/backend/internal/files"
	"github.com/collabforge/backend/internal/projects"
	"github.com/collabforge/backend/internal/share"
	"github.com/collabforge/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeServiceError maps domain errors onto the REST status taxonomy:
// 400 validation, 401 authentication, 403 authorization, 404 not found,
// 409 duplicate, 410 expired, 500 storage failure.
func (h *httpHandler) writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, users.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, users.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "user already exists"})
	case errors.Is(err, users.ErrWeakPassword),
		errors.Is(err, users.ErrInvalidEmail),
		errors.Is(err, projects.ErrInvalidName),
		errors.Is(err, projects.ErrInvalidRole),
		errors.Is(err, projects.ErrOwnerCollaborator),
		errors.Is(err, share.ErrInvalidRole),
		errors.Is(err, files.ErrInvalidNode),
		errors.Is(err, files.ErrInvalidParent),
		errors.Is(err, files.ErrNotFile):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, projects.ErrNotOwner),
		errors.Is(err, share.ErrNotOwner),
		errors.Is(err, files.ErrAccessDenied),
		errors.Is(err, files.ErrReadOnly):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, users.ErrAccountNotFound),
		errors.Is(err, projects.ErrProjectNotFound),
		errors.Is(err, files.ErrNodeNotFound),
		errors.Is(err, files.ErrVersionNotFound),
		errors.Is(err, share.ErrTokenNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, share.ErrTokenExpired):
		c.JSON(http.StatusGone, gin.H{"error": "token expired"})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
