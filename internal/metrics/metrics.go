package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_connections",
		Help: "Current number of registered relay connections",
	})
	WsRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_rooms",
		Help: "Current number of rooms with a running relay",
	})
	WsMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_messages_total",
		Help: "Total number of chat messages persisted and broadcast",
	})
	WsPersistFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_persist_failures_total",
		Help: "Inbound frames dropped because they could not be persisted",
	})
	WsDroppedFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_dropped_frames_total",
		Help: "Broadcast frames skipped for a peer whose outbound buffer was full",
	})
	WsAuthFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_ws_auth_failures_total",
		Help: "Relay connections rejected during authentication",
	}, []string{"stage"})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WsConnections, WsRooms, WsMessagesTotal, WsPersistFailures, WsDroppedFrames, WsAuthFailures,
		HttpRequestsTotal, HttpRequestDuration,
	)
}

// GinMiddleware 统计基础请求指标，供 Prometheus 拉取。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
