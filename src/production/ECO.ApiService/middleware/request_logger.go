package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	logger "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Logger"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	loggerKey       = "logger"
)

// RequestID tags every request with an id, reusing the caller's when present
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestLogger replaces gin.Logger with a structured access log
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	base := log.WithComponent("http")
	return func(c *gin.Context) {
		started := time.Now()
		reqLog := base.WithRequestID(c.GetString(requestIDKey))
		c.Set(loggerKey, reqLog)

		c.Next()

		status := c.Writer.Status()
		event := reqLog.Logger.Info()
		switch {
		case status >= 500:
			event = reqLog.Logger.Error()
		case status >= 400:
			event = reqLog.Logger.Warn()
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(started)).
			Str("client_ip", c.ClientIP()).
			Msg("Request handled")
	}
}

// LoggerFrom returns the request-scoped logger, or fallback outside RequestLogger
func LoggerFrom(c *gin.Context, fallback *logger.Logger) *logger.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(*logger.Logger); ok {
			return l
		}
	}
	return fallback
}
