package auth

import (
	"errors"
	"net/http"

	"github.com/WBHankins93/messaging-app/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const userKey = "user"

// Middleware 要求 Authorization 头中带有效 access token。
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := g.Authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			if errors.Is(err, ErrUnauthenticated) {
				c.Header("WWW-Authenticate", "Bearer")
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "could not validate credentials"})
				return
			}
			log.Error().Err(err).Str("path", c.FullPath()).Msg("authenticate request")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

// AdminOnly 必须挂在 Middleware 之后。
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := RequireAdmin(CurrentUser(c)); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin privileges required"})
			return
		}
		c.Next()
	}
}

func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok2 := v.(*models.User); ok2 {
			return u
		}
	}
	return nil
}
