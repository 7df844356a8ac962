package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gitlab.com/ecotrack/eco.iot_server/src/production/ECO.ApiService/middleware"
	logger "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Logger"
	ecomodels "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Models"
)

// respondError maps domain errors onto HTTP status codes
func respondError(ctx *gin.Context, log *logger.Logger, err error) {
	var (
		verr *ecomodels.ValidationError
		terr *ecomodels.InvalidTopicError
		serr *ecomodels.StoreError
	)

	switch {
	case errors.As(err, &verr):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.As(err, &terr):
		ctx.JSON(http.StatusNotFound, gin.H{"error": terr.Error()})
	case errors.Is(err, ecomodels.ErrNoReadings):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "No IoT data available"})
	case errors.As(err, &serr):
		middleware.LoggerFrom(ctx, log).ErrorWithError(err, "Store operation failed")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
	default:
		middleware.LoggerFrom(ctx, log).ErrorWithError(err, "Request failed")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
