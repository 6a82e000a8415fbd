package server

import (
	"errors"
	"net/http"

	"github.com/collabforge/backend/internal/execute"
	"github.com/gin-gonic/gin"
)

type executeRequestPayload struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

func (h *httpHandler) handleExecute(c *gin.Context) {
	var request executeRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no code provided"})
		return
	}

	result, err := h.runner.Run(c.Request.Context(), request.Language, request.Code)
	switch {
	case errors.Is(err, execute.ErrTimeout):
		c.JSON(http.StatusRequestTimeout, gin.H{"error": "execution timed out"})
		return
	case errors.Is(err, execute.ErrUnsupportedLanguage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"output": result.Output, "exitCode": result.ExitCode})
}
