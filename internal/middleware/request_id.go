package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	applog "wiselib/api/internal/log"
)

const requestIDHeader = applog.RequestIDHeader

// RequestID tags every request and carries the id in the request context so
// directory sync and assistant calls forward it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}

		c.Set(requestIDHeader, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)
		c.Request = c.Request.WithContext(applog.WithRequestID(c.Request.Context(), requestID))

		c.Next()
	}
}

func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDHeader)
}
