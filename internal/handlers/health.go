package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	Cache       string `json:"cache"`
	Environment string `json:"environment"`
}

func (h HandlerSet) probe(ctx context.Context, name string, p Probe) string {
	if p == nil {
		return "unknown"
	}
	if err := p(ctx); err != nil {
		h.log.Error().Err(err).Str("dependency", name).Msg("health probe failed")
		return "error"
	}
	return "ok"
}

func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:      "ok",
		Database:    h.probe(ctx, "postgres", h.deps.Database),
		Cache:       h.probe(ctx, "redis", h.deps.Cache),
		Environment: h.cfg.Environment,
	}
	status := http.StatusOK
	if resp.Database == "error" {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
