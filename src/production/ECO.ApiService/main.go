package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gitlab.com/ecotrack/eco.iot_server/src/production/ECO.ApiService/aggregator"
	"gitlab.com/ecotrack/eco.iot_server/src/production/ECO.ApiService/controllers"
	"gitlab.com/ecotrack/eco.iot_server/src/production/ECO.ApiService/metrics"
	"gitlab.com/ecotrack/eco.iot_server/src/production/ECO.ApiService/middleware"
	"gitlab.com/ecotrack/eco.iot_server/src/production/ECO.ApiService/realtime"
	config "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Config"
	container "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Container"
)

func main() {
	ctr, err := container.NewApiContainer()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize container: %v", err))
	}
	defer ctr.Shutdown(context.Background())

	logger := ctr.GetLogger()
	cfg := ctr.GetConfig()
	logger.Info("Starting API Service")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(rootCtx, 30*time.Second)
	readingRepo, err := ctr.GetReadingRepository(initCtx)
	cancel()
	if err != nil {
		logger.FatalWithError(err, "Failed to initialize reading store")
	}

	agg := aggregator.New(readingRepo, cfg.Realtime.Window, cfg.LabelLocation())
	registry := realtime.NewRegistry()
	broadcaster := realtime.NewBroadcaster(registry, agg, logger)

	if cfg.Realtime.Relay == config.RelayRedis {
		client, err := ctr.GetRedis(rootCtx)
		if err != nil {
			logger.FatalWithError(err, "Failed to initialize redis relay")
		}
		relay := realtime.NewRedisRelay(client, cfg.Redis.Channel, broadcaster.HandleEvent, logger)
		broadcaster.UseRelay(relay)

		relayCtx, stopRelay := context.WithCancel(rootCtx)
		relayDone := make(chan struct{})
		go func() {
			defer close(relayDone)
			if err := relay.Run(relayCtx); err != nil {
				logger.ErrorWithError(err, "Redis relay stopped")
			}
		}()
		// registered after the redis client, so it runs before the client closes
		ctr.AddCleanupFunc(func() error {
			stopRelay()
			<-relayDone
			return nil
		})
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(metrics.GinMiddleware())

	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}
	router.Use(cors.New(corsConfig))

	clientOpts := realtime.ClientOptions{
		SendBuffer:   cfg.Realtime.SendBuffer,
		PingInterval: cfg.Realtime.PingInterval,
		WriteTimeout: cfg.Realtime.WriteTimeout,
	}

	controllers.NewIngestController(readingRepo, broadcaster, logger, cfg.InternalAPISecret).RegisterRoutes(router)
	controllers.NewSnapshotController(readingRepo, agg, logger).RegisterRoutes(router)
	controllers.NewStreamController(registry, agg, clientOpts, logger).RegisterRoutes(router)
	controllers.NewHealthController(ctr.GetHealthChecker(), registry, logger).RegisterRoutes(router)

	port := cfg.Server.Port
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP server starting on port " + port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.FatalWithError(err, "Failed to start HTTP server")
		}
	}()

	logger.Info("API service running... press Ctrl+C to stop")
	<-rootCtx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithError(err, "Server forced to shutdown")
	}
}
