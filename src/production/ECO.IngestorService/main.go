package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	container "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Container"
	"gitlab.com/ecotrack/eco.iot_server/src/production/ECO.IngestorService/client"
	ecoingestor "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.IngestorService/ingestor"
)

func main() {
	ctr, err := container.NewIngestorContainer()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize container: %v", err))
	}
	defer ctr.Shutdown(context.Background())

	logger := ctr.GetLogger()
	cfg := ctr.GetConfig()
	logger.Info("Starting MQTT Ingestor Service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiClient := client.NewAPIClient(cfg.ApiServiceURL, cfg.InternalAPISecret, client.DefaultOptions)

	ing := ecoingestor.New(cfg, apiClient, logger)
	if err := ing.Start(ctx); err != nil {
		logger.FatalWithError(err, "Failed to start MQTT ingestor")
	}
	defer ing.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      healthRouter(ing, apiClient),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		logger.Info("Health server starting on port " + cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.FatalWithError(err, "Failed to start health server")
		}
	}()

	logger.Info("MQTT ingestor running... press Ctrl+C to stop")
	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithError(err, "Health server forced to shutdown")
	}
}

func healthRouter(ing *ecoingestor.Ingestor, apiClient *client.APIClient) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		mqttStatus := "disconnected"
		if ing.IsConnected() {
			mqttStatus = "connected"
		}

		apiStatus := "disconnected"
		if err := apiClient.Health(ctx); err == nil {
			apiStatus = "connected"
		}

		status, code := "healthy", http.StatusOK
		if mqttStatus != "connected" || apiStatus != "connected" {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}

		forwarded, failed := ing.Stats()
		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"services": gin.H{
				"mqtt":        mqttStatus,
				"api_service": apiStatus,
			},
			"circuit_breaker": apiClient.GetCircuitBreakerStatus(),
			"readings": gin.H{
				"forwarded": forwarded,
				"failed":    failed,
			},
		})
	})

	return router
}
