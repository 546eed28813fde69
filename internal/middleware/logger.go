package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// quietPaths log at debug level when they succeed.
var quietPaths = map[string]bool{"/healthz": true, "/metrics": true}

func Logger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		case quietPaths[c.Request.URL.Path]:
			event = log.Debug()
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("route", c.FullPath()).
			Str("client_ip", c.ClientIP()).
			Int("status", status).
			Dur("latency", latency).
			Str("request_id", RequestIDFrom(c))
		actor(event, c).Msg("http request")
	}
}

// actor adds who made the request: the signed-in user or the kiosk device.
func actor(event *zerolog.Event, c *gin.Context) *zerolog.Event {
	if user, ok := CurrentUser(c); ok {
		event = event.Str("user_id", user.ID).Str("user_type", string(user.Type))
	}
	if device := c.GetString(KioskDeviceKey); device != "" {
		event = event.Str("kiosk", device)
	}
	return event
}
