package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/collabforge/backend/internal/auth"
	"github.com/collabforge/backend/internal/execute"
	"github.com/collabforge/backend/internal/files"
	"github.com/collabforge/backend/internal/projects"
	"github.com/collabforge/backend/internal/realtime"
	"github.com/collabforge/backend/internal/share"
	"github.com/collabforge/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	userIDContextKey = "collab_user_id"
	claimsContextKey = "collab_claims"
)

var (
	errMissingTokenManager    = errors.New("token manager dependency required")
	errMissingUsersService    = errors.New("users service dependency required")
	errMissingProjectsService = errors.New("projects service dependency required")
	errMissingFilesService    = errors.New("files service dependency required")
	errMissingShareService    = errors.New("share service dependency required")
	errMissingHub             = errors.New("realtime hub dependency required")
	errInvalidAuthorization   = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates backend bearer tokens.
type TokenManager interface {
	IssueToken(identity auth.Claims) (string, int64, error)
	ValidateToken(token string) (auth.Claims, error)
}

// Dependencies wires the HTTP handler to its collaborating services.
type Dependencies struct {
	TokenManager    TokenManager
	UsersService    *users.Service
	ProjectsService *projects.Service
	FilesService    *files.Service
	ShareService    *share.Service
	Hub             *realtime.Hub
	Runner          *execute.Runner
	Database        *gorm.DB
	Logger          *zap.Logger
	ClientOrigin    string
}

// NewHTTPHandler builds the gin router serving the REST API and the
// realtime websocket endpoint.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.UsersService == nil {
		return nil, errMissingUsersService
	}
	if deps.ProjectsService == nil {
		return nil, errMissingProjectsService
	}
	if deps.FilesService == nil {
		return nil, errMissingFilesService
	}
	if deps.ShareService == nil {
		return nil, errMissingShareService
	}
	if deps.Hub == nil {
		return nil, errMissingHub
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	origin := deps.ClientOrigin
	if origin == "" {
		origin = "http://localhost:3000"
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{origin},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Accept", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:   deps.TokenManager,
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		users:    deps.UsersService,
		projects: deps.ProjectsService,
		files:    deps.FilesService,
		share:    deps.ShareService,
		hub:      deps.Hub,
		runner:   deps.Runner,
		db:       deps.Database,
		logger:   logger,
		origin:   origin,
	}

	handler.upgrader.CheckOrigin = handler.checkOrigin

	router.GET("/health", handler.handleHealth)
	router.GET("/ready", handler.handleReady)
	router.GET("/ws", handler.handleWebsocket)

	router.POST("/auth/register", handler.handleRegister)
	router.POST("/auth/login", handler.handleLogin)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/auth/me", handler.handleMe)

	protected.GET("/api/projects", handler.handleListProjects)
	protected.POST("/api/projects", handler.handleCreateProject)
	protected.GET("/api/projects/:projectId", handler.handleGetProject)
	protected.POST("/api/projects/:projectId/invite", handler.handleInvite)

	protected.POST("/api/projects/:projectId/files", handler.handleCreateFile)
	protected.GET("/api/projects/:projectId/tree", handler.handleProjectTree)
	protected.GET("/api/projects/:projectId/folders/:folderId", handler.handleFolderContents)
	protected.GET("/api/files/:fileId", handler.handleGetFile)
	protected.PUT("/api/files/:fileId", handler.handleUpdateFile)
	protected.DELETE("/api/files/:fileId", handler.handleDeleteFile)
	protected.GET("/api/files/:fileId/versions", handler.handleListVersions)
	protected.POST("/api/files/:fileId/revert", handler.handleRevert)

	protected.POST("/api/share/:projectId", handler.handleCreateShare)
	router.GET("/api/share/validate/:token", handler.handleValidateShare)
	protected.POST("/api/share/:projectId/join", handler.handleJoinShare)

	if deps.Runner != nil {
		protected.POST("/api/execute", handler.handleExecute)
	}

	return router, nil
}

type httpHandler struct {
	tokens   TokenManager
	upgrader websocket.Upgrader
	users    *users.Service
	projects *projects.Service
	files    *files.Service
	share    *share.Service
	hub      *realtime.Hub
	runner   *execute.Runner
	db       *gorm.DB
	logger   *zap.Logger
	origin   string
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleReady(c *gin.Context) {
	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, claims.UserID)
	c.Set(claimsContextKey, claims)
	c.Next()
}

func (h *httpHandler) currentUserID(c *gin.Context) string {
	return c.GetString(userIDContextKey)
}

func (h *httpHandler) currentClaims(c *gin.Context) auth.Claims {
	value, ok := c.Get(claimsContextKey)
	if !ok {
		return auth.Claims{}
	}
	claims, _ := value.(auth.Claims)
	return claims
}
