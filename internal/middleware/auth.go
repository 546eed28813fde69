package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"wiselib/api/internal/config"
	"wiselib/api/internal/models"
	"wiselib/api/internal/security"
)

const (
	CurrentUserKey = "current_user"
	ClaimsKey      = "access_claims"
)

type UserLookup interface {
	GetByID(ctx context.Context, id string) (models.User, error)
}

type SessionLookup interface {
	GetByID(ctx context.Context, id string) (models.Session, error)
	Touch(ctx context.Context, sessionID string, ip string, userAgent string) error
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	// browsers cannot set headers on websocket upgrades
	if c.IsWebsocket() {
		return c.Query("access_token")
	}
	return ""
}

func Auth(cfg *config.AppConfig, users UserLookup, sessions SessionLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		claims, err := security.ParseAccessToken(tokenStr, cfg.Security.JWTAccessSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		session, err := sessions.GetByID(c.Request.Context(), claims.SessionID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session_not_found"})
			return
		}
		if session.UserID != claims.UserID || session.DeviceID != claims.DeviceID {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session_mismatch"})
			return
		}

		user, err := users.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_not_found"})
			return
		}
		if !user.IsActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user_inactive"})
			return
		}

		_ = sessions.Touch(c.Request.Context(), session.ID, c.ClientIP(), c.GetHeader("User-Agent"))

		c.Set(ClaimsKey, *claims)
		c.Set(CurrentUserKey, user)

		c.Next()
	}
}

func CurrentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(CurrentUserKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok
}

func Claims(c *gin.Context) (security.AccessClaims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return security.AccessClaims{}, false
	}
	claims, ok := v.(security.AccessClaims)
	return claims, ok
}
