package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wiselib/api/internal/service"
)

func (h HandlerSet) ListNotifications(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	items, unread, err := h.svc.Notifications.List(c.Request.Context(), user, queryInt(c, "limit", 0))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]service.NotificationPush, 0, len(items))
	for _, n := range items {
		out = append(out, service.Push(n))
	}
	c.JSON(http.StatusOK, gin.H{"items": out, "unread": unread})
}

func (h HandlerSet) MarkNotificationRead(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.svc.Notifications.MarkRead(c.Request.Context(), user, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h HandlerSet) MarkAllNotificationsRead(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	n, err := h.svc.Notifications.MarkAllRead(c.Request.Context(), user)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h HandlerSet) DeleteNotification(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.svc.Notifications.Remove(c.Request.Context(), user, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
