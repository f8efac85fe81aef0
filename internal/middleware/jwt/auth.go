package jwt

import (
	"strings"

	"SecAssist/pkg/back"
	"SecAssist/pkg/util/myjwt"
	"SecAssist/pkg/xerr"

	"github.com/gin-gonic/gin"
)

// ContextUserKey gin context key holding the authenticated user id
const ContextUserKey = "uuid"

// Auth validates the bearer token and stores the user id under ContextUserKey
func Auth(opts myjwt.Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			back.Error(c, xerr.Unauthorized, "missing or invalid authorization header")
			c.Abort()
			return
		}

		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		claims, err := myjwt.ParseToken(opts, tokenString)
		if err != nil {
			back.Error(c, xerr.Unauthorized, "invalid token")
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims.Uuid)
		c.Set("username", claims.Username)
		c.Next()
	}
}

// RequireAdmin must run after Auth; an empty list denies everyone
func RequireAdmin(admins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(admins))
	for _, a := range admins {
		if a = strings.TrimSpace(a); a != "" {
			allowed[a] = struct{}{}
		}
	}
	return func(c *gin.Context) {
		if _, ok := allowed[c.GetString(ContextUserKey)]; !ok {
			back.Error(c, xerr.Forbidden, "admin only")
			c.Abort()
			return
		}
		c.Next()
	}
}
