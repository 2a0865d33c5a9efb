// Package middleware provides Gin HTTP middleware for authentication, rate
// limiting, security headers, request IDs, and metrics.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RequestID → Metrics → RateLimit → Auth → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attempts before any DB
// work. Auth populates the caller identity that handlers read from the context.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agent-registry/agent-registry/internal/auth"
	"github.com/agent-registry/agent-registry/internal/db/models"
	"github.com/agent-registry/agent-registry/internal/safego"
)

const (
	// UserKey is the gin.Context key holding the authenticated *models.User.
	UserKey = "user"
	// UserIDKey is the gin.Context key holding the authenticated user's ID.
	UserIDKey = "user_id"
)

// TokenStore is the token persistence auth middleware needs.
type TokenStore interface {
	GetTokenByHash(ctx context.Context, hash string) (*models.AuthToken, error)
	UpdateLastUsed(ctx context.Context, tokenID string, when time.Time) error
}

// UserStore resolves token owners.
type UserStore interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}

// AuthMiddleware validates the bearer token and aborts unauthenticated
// requests. Tokens are looked up by SHA-256 hash, so validation is a single
// indexed query; the plaintext never touches the database.
func AuthMiddleware(tokens TokenStore, users UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := authenticate(c, tokens, users)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or missing bearer token",
			})
			return
		}

		c.Set(UserKey, user)
		c.Set(UserIDKey, user.ID)
		c.Next()
	}
}

// OptionalAuthMiddleware resolves the bearer token when one is presented but
// never aborts. Read endpoints use it so public artifacts stay reachable
// without credentials while members still see their private ones.
func OptionalAuthMiddleware(tokens TokenStore, users UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if user, ok := authenticate(c, tokens, users); ok {
			c.Set(UserKey, user)
			c.Set(UserIDKey, user.ID)
		}
		c.Next()
	}
}

// CallerID returns the authenticated user's ID, or "" for anonymous requests.
func CallerID(c *gin.Context) string {
	if id, exists := c.Get(UserIDKey); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

func authenticate(c *gin.Context, tokens TokenStore, users UserStore) (*models.User, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, false
	}
	plaintext := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if !auth.HasTokenPrefix(plaintext) {
		return nil, false
	}

	token, err := tokens.GetTokenByHash(c.Request.Context(), auth.HashToken(plaintext))
	if err != nil || token == nil {
		return nil, false
	}
	if token.ExpiresAt != nil && time.Now().After(*token.ExpiresAt) {
		return nil, false
	}

	user, err := users.GetUserByID(c.Request.Context(), token.UserID)
	if err != nil || user == nil {
		return nil, false
	}

	// Last-used tracking is best-effort. A synchronous write here would add
	// a DB write to every authenticated request; the timeout bounds the
	// goroutine when the database is unreachable.
	tokenID := token.ID
	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tokens.UpdateLastUsed(ctx, tokenID, time.Now())
	})

	return user, true
}
