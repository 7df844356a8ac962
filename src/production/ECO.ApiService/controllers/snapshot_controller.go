package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	logger "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Logger"
	ecomodels "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Models"
	interfaces "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Repository/Interfaces"
)

// SnapshotComputer builds the view of one topic
type SnapshotComputer interface {
	Compute(ctx context.Context, topic ecomodels.Topic) (ecomodels.Snapshot, error)
}

// SnapshotController serves the synchronous read endpoints
type SnapshotController struct {
	readingRepo interfaces.ReadingRepository
	computer    SnapshotComputer
	logger      *logger.Logger
}

func NewSnapshotController(readingRepo interfaces.ReadingRepository, computer SnapshotComputer, log *logger.Logger) *SnapshotController {
	return &SnapshotController{
		readingRepo: readingRepo,
		computer:    computer,
		logger:      log.WithComponent("api"),
	}
}

func (c *SnapshotController) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	for _, topic := range ecomodels.Topics {
		api.GET("/"+string(topic)+"-data/", c.topicHandler(topic))
	}
	api.GET("/snapshots/:topic", c.GetSnapshot)
	api.GET("/latest-data/", c.GetLatest)
	api.GET("/history-data/", c.GetHistory)
}

func (c *SnapshotController) topicHandler(topic ecomodels.Topic) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		c.writeSnapshot(ctx, topic)
	}
}

func (c *SnapshotController) GetSnapshot(ctx *gin.Context) {
	topic, err := ecomodels.ParseTopic(ctx.Param("topic"))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	c.writeSnapshot(ctx, topic)
}

func (c *SnapshotController) writeSnapshot(ctx *gin.Context, topic ecomodels.Topic) {
	snap, err := c.computer.Compute(ctx.Request.Context(), topic)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, snap)
}

// GetLatest returns the newest reading in full
func (c *SnapshotController) GetLatest(ctx *gin.Context) {
	readings, err := c.readingRepo.Latest(ctx.Request.Context(), 1)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	if len(readings) == 0 {
		respondError(ctx, c.logger, ecomodels.ErrNoReadings)
		return
	}

	ctx.JSON(http.StatusOK, readings[0].DetailRow())
}

// GetHistory pages through every reading, newest first
func (c *SnapshotController) GetHistory(ctx *gin.Context) {
	page, errPage := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, errLimit := strconv.Atoi(ctx.DefaultQuery("limit", strconv.Itoa(ecomodels.DefaultPageLimit)))
	if errPage != nil || errLimit != nil || page < 1 || limit < 1 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page or limit parameter"})
		return
	}
	if limit > ecomodels.MaxPageLimit {
		limit = ecomodels.MaxPageLimit
	}

	total, err := c.readingRepo.Count(ctx.Request.Context())
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	meta, offset, ok := ecomodels.NewPageMeta(total, page, limit)
	result := ecomodels.HistoryPage{Data: []ecomodels.Row{}, Meta: meta}
	if !ok {
		ctx.JSON(http.StatusOK, result)
		return
	}

	readings, err := c.readingRepo.Page(ctx.Request.Context(), offset, limit)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	for _, rd := range readings {
		result.Data = append(result.Data, rd.HistoryRow())
	}
	ctx.JSON(http.StatusOK, result)
}
