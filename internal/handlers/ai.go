package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wiselib/api/internal/service"
)

type chatRequest struct {
	Prompt  string                `json:"prompt" binding:"required"`
	History []service.ChatMessage `json:"history"`
}

func (h HandlerSet) Chat(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req chatRequest
	if !bindJSON(c, &req) {
		return
	}
	reply, err := h.svc.AI.Chat(c.Request.Context(), user.ID, req.Prompt, req.History)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": reply.Content, "model": reply.Model})
}

func (h HandlerSet) AILogs(c *gin.Context) {
	logs, err := h.svc.AI.Recent(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		h.fail(c, err)
		return
	}
	items := make([]gin.H, 0, len(logs))
	for _, l := range logs {
		items = append(items, gin.H{
			"id":        l.ID,
			"userId":    l.UserID,
			"prompt":    l.Prompt,
			"response":  l.Response,
			"model":     l.Model,
			"createdAt": l.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
