// Package auth authenticates HTTP and WebSocket requests with a bearer token.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/GroupChat/middleware/jwt"
	logger "github.com/Gopher0727/GroupChat/middleware/log"
)

const (
	UserIDKey   = "user_id"
	UsernameKey = "username"
)

// TokenParser is satisfied by *jwt.TokenManager.
type TokenParser interface {
	Parse(token string) (*jwt.Claims, error)
}

// Middleware JWT 认证中间件
func Middleware(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing bearer token",
				"code":  "unauthenticated",
			})
			return
		}

		claims, err := tokens.Parse(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrExpiredToken) {
				msg = "token has expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": msg,
				"code":  "unauthenticated",
			})
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(UsernameKey, claims.Username)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), claims.UserID))
		c.Next()
	}
}

// extractToken reads the Authorization header first. Browsers cannot set
// headers on a WebSocket upgrade, so ?token= is accepted as well.
func extractToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return c.Query("token")
}

// UserID returns the authenticated user of the request, or "".
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
