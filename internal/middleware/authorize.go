package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wiselib/api/internal/models"
)

func RequireTypes(types ...models.UserType) gin.HandlerFunc {
	allowed := make(map[models.UserType]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}

	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if _, ok := allowed[user.Type]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return RequireTypes(models.UserTypeAdmin)
}
