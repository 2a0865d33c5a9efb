// Package accounts exposes registration, login, and bearer token management
// endpoints. Registration and login return the plaintext token exactly once;
// every other response carries only the display prefix.
package accounts

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agent-registry/agent-registry/internal/api/respond"
	"github.com/agent-registry/agent-registry/internal/db/models"
	"github.com/agent-registry/agent-registry/internal/middleware"
	"github.com/agent-registry/agent-registry/internal/services"
)

// Handlers serves account and token endpoints.
type Handlers struct {
	identity *services.IdentityService
}

// NewHandlers creates the account handlers.
func NewHandlers(identity *services.IdentityService) *Handlers {
	return &Handlers{identity: identity}
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterHandler handles account creation.
// Implements: POST /api/v1/auth/register
func (h *Handlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		creds, err := h.identity.Register(c.Request.Context(), req.Email, req.Username, req.Password)
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"user":  creds.User,
			"token": creds.Token,
		})
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginHandler verifies credentials and issues a fresh token.
// Implements: POST /api/v1/auth/login
func (h *Handlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		creds, err := h.identity.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user":  creds.User,
			"token": creds.Token,
		})
	}
}

// MeHandler returns the authenticated caller's account.
// Implements: GET /api/v1/auth/me
func (h *Handlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get(middleware.UserKey)
		user, ok := value.(*models.User)
		if !exists || !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing bearer token"})
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

type createTokenRequest struct {
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// CreateTokenHandler issues a named token for the caller.
// Implements: POST /api/v1/tokens
func (h *Handlers) CreateTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		token, plaintext, err := h.identity.CreateToken(c.Request.Context(), middleware.CallerID(c), req.Name, req.ExpiresAt)
		if err != nil {
			respond.Error(c, err)
			return
		}

		// The only response that ever contains the plaintext token
		c.JSON(http.StatusCreated, gin.H{
			"id":         token.ID,
			"name":       token.Name,
			"token":      plaintext,
			"prefix":     token.TokenPrefix,
			"expires_at": token.ExpiresAt,
			"created_at": token.CreatedAt,
		})
	}
}

// ListTokensHandler lists the caller's tokens (prefixes only, never hashes).
// Implements: GET /api/v1/tokens
func (h *Handlers) ListTokensHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokens, err := h.identity.ListTokens(c.Request.Context(), middleware.CallerID(c))
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"tokens": tokens})
	}
}

// DeleteTokenHandler revokes one of the caller's tokens. Tokens owned by
// other users look nonexistent, never forbidden.
// Implements: DELETE /api/v1/tokens/:id
func (h *Handlers) DeleteTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.identity.DeleteToken(c.Request.Context(), c.Param("id"), middleware.CallerID(c)); err != nil {
			respond.Error(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
