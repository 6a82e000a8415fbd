package server

import (
	"net/http"

	"github.com/collabforge/backend/internal/auth"
	"github.com/collabforge/backend/internal/users"
	"github.com/gin-gonic/gin"
)

type registerRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accountPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type authResponsePayload struct {
	Token     string         `json:"token"`
	ExpiresIn int64          `json:"expires_in"`
	User      accountPayload `json:"user"`
}

func accountToPayload(account users.Account) accountPayload {
	return accountPayload{ID: account.ID, Email: account.Email, Name: account.DisplayName}
}

func (h *httpHandler) issueFor(account users.Account) (authResponsePayload, error) {
	token, expiresIn, err := h.tokens.IssueToken(auth.Claims{
		UserID:      account.ID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
	})
	if err != nil {
		return authResponsePayload{}, err
	}
	return authResponsePayload{
		Token:     token,
		ExpiresIn: expiresIn,
		User:      accountToPayload(account),
	}, nil
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Email == "" || request.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	account, err := h.users.Register(c.Request.Context(), request.Email, request.Password, request.Name)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	response, err := h.issueFor(account)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Email == "" || request.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	account, err := h.users.Authenticate(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	response, err := h.issueFor(account)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleMe(c *gin.Context) {
	account, err := h.users.GetByID(c.Request.Context(), h.currentUserID(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, accountToPayload(account))
}
