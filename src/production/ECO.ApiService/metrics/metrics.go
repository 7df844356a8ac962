package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReadingsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ecotrack_readings_ingested_total",
			Help: "Readings accepted by the ingestion endpoint",
		},
	)

	BroadcastDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ecotrack_broadcast_duration_seconds",
			Help:    "Time to compute and enqueue one topic snapshot",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)

	DeliveryFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecotrack_delivery_failures_total",
			Help: "Pushes dropped because a subscriber was closed or too slow",
		},
		[]string{"topic"},
	)

	Subscribers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ecotrack_subscribers",
			Help: "Open websocket subscribers per topic",
		},
		[]string{"topic"},
	)

	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecotrack_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	prometheus.MustRegister(ReadingsIngested, BroadcastDuration, DeliveryFailures, Subscribers, RequestCounter)
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveBroadcast records how long one topic fan-out took
func ObserveBroadcast(topic string, started time.Time) {
	BroadcastDuration.WithLabelValues(topic).Observe(time.Since(started).Seconds())
}

// GinMiddleware counts requests by matched route
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		RequestCounter.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
