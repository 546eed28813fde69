package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wiselib/api/internal/tasks"
)

func (h HandlerSet) enqueue(c *gin.Context, taskType string, payload any) {
	if h.deps.Tasks == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue_unavailable"})
		return
	}
	id, err := h.deps.Tasks.Enqueue(c.Request.Context(), taskType, payload)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task": taskType, "messageId": id})
}

// RunJob queues one of the periodic sweeps immediately.
func (h HandlerSet) RunJob(c *gin.Context) {
	task := c.Param("task")
	if task == tasks.TypeNotify || !tasks.Known(task) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_task"})
		return
	}
	h.enqueue(c, task, nil)
}

type sendNotificationRequest struct {
	Receiver       string            `json:"receiverId" binding:"required"`
	Event          string            `json:"event" binding:"required"`
	Vars           map[string]string `json:"vars"`
	ActionRequired bool              `json:"actionRequired"`
}

// SendNotification hands a templated notification to the worker.
func (h HandlerSet) SendNotification(c *gin.Context) {
	var req sendNotificationRequest
	if !bindJSON(c, &req) {
		return
	}
	h.enqueue(c, tasks.TypeNotify, tasks.NotifyPayload{
		Receiver:       req.Receiver,
		Event:          req.Event,
		Vars:           req.Vars,
		ActionRequired: req.ActionRequired,
	})
}
