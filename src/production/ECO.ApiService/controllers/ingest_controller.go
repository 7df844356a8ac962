package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"gitlab.com/ecotrack/eco.iot_server/src/production/ECO.ApiService/ingest"
	"gitlab.com/ecotrack/eco.iot_server/src/production/ECO.ApiService/metrics"
	"gitlab.com/ecotrack/eco.iot_server/src/production/ECO.ApiService/middleware"
	logger "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Logger"
	ecomodels "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Models"
	interfaces "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Repository/Interfaces"
)

// Notifier is told about every committed reading
type Notifier interface {
	Trigger(ctx context.Context, rd ecomodels.Reading)
}

// IngestController accepts readings from devices and from the MQTT ingestor
type IngestController struct {
	readingRepo    interfaces.ReadingRepository
	notifier       Notifier
	logger         *logger.Logger
	internalSecret string
}

func NewIngestController(readingRepo interfaces.ReadingRepository, notifier Notifier, log *logger.Logger, internalSecret string) *IngestController {
	return &IngestController{
		readingRepo:    readingRepo,
		notifier:       notifier,
		logger:         log.WithComponent("ingest"),
		internalSecret: internalSecret,
	}
}

func (c *IngestController) RegisterRoutes(router *gin.Engine) {
	router.POST("/iot-data", c.CreateReading)
	router.POST("/api/iot-data/", c.CreateReading)

	internal := router.Group("/internal")
	internal.Use(middleware.ServiceAuthMiddleware(c.internalSecret))
	internal.POST("/readings", c.CreateReading)
}

// CreateReading stores one reading and then triggers the fan-out
func (c *IngestController) CreateReading(ctx *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(ctx.Writer, ctx.Request.Body, ingest.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ctx.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "unable to read request body"})
		return
	}

	in, err := ingest.Decode(body)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	reading, err := c.readingRepo.Insert(ctx.Request.Context(), in)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	metrics.ReadingsIngested.Inc()

	middleware.LoggerFrom(ctx, c.logger).Logger.Debug().
		Int64("reading_id", reading.ID).
		Str("hardware_sensor_id", reading.HardwareSensorID).
		Msg("Reading stored")

	// the fan-out outlives a client that hangs up after the insert
	c.notifier.Trigger(context.WithoutCancel(ctx.Request.Context()), reading)

	ctx.JSON(http.StatusCreated, gin.H{"id": reading.ID})
}
