package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	metricsx "github.com/tanpawarit/account-opening-agents/pkg/metrics"
)

type HealthHandler struct {
	Metrics *metricsx.Metrics
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/metrics", gin.WrapH(h.Metrics.Handler()))
}

func (h *HealthHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
