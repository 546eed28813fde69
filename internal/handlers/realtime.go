package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wiselib/api/internal/models"
)

// Realtime upgrades to a websocket that receives the user's pushes, plus the
// shared admin feed for administrators.
func (h HandlerSet) Realtime(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if h.deps.Hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime_unavailable"})
		return
	}
	keys := []string{user.ID}
	if isAdmin(user) {
		keys = append(keys, models.AdminReceiver)
	}
	if err := h.deps.Hub.Serve(c.Writer, c.Request, keys...); err != nil {
		h.log.Warn().Err(err).Str("user_id", user.ID).Msg("websocket upgrade failed")
	}
}
