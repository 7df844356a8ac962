package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gitlab.com/ecotrack/eco.iot_server/src/production/ECO.ApiService/health"
	"gitlab.com/ecotrack/eco.iot_server/src/production/ECO.ApiService/metrics"
	"gitlab.com/ecotrack/eco.iot_server/src/production/ECO.ApiService/realtime"
	logger "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Logger"
)

const readinessTimeout = 3 * time.Second

// HealthController handles liveness, readiness and metrics requests
type HealthController struct {
	checker  *health.HealthChecker
	registry *realtime.Registry
	logger   *logger.Logger
}

func NewHealthController(checker *health.HealthChecker, registry *realtime.Registry, log *logger.Logger) *HealthController {
	return &HealthController{
		checker:  checker,
		registry: registry,
		logger:   log.WithComponent("health"),
	}
}

func (c *HealthController) RegisterRoutes(router *gin.Engine) {
	router.GET("/health/live", c.HealthLive)
	router.GET("/health/ready", c.HealthReady)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
}

func (c *HealthController) HealthLive(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// HealthReady probes every registered dependency
func (c *HealthController) HealthReady(ctx *gin.Context) {
	pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), readinessTimeout)
	defer cancel()

	status := c.checker.GetHealthStatus(pingCtx)

	subscribers := make(map[string]int)
	for topic, n := range c.registry.Counts() {
		subscribers[string(topic)] = n
	}
	status["subscribers"] = subscribers

	if status["status"] != "ok" {
		c.logger.Logger.Warn().Interface("checks", status["checks"]).Msg("Readiness check failed")
		ctx.JSON(http.StatusServiceUnavailable, status)
		return
	}
	ctx.JSON(http.StatusOK, status)
}
