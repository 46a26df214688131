package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Admin API collectors. The path label is the registered route, so raw IDs
// in URLs never reach label values.
var (
	httpReqs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memebot",
		Subsystem: "admin_http",
		Name:      "requests_total",
		Help:      "Admin API requests by method, route and status.",
	}, []string{"method", "path", "status"})

	httpLat = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "memebot",
		Subsystem: "admin_http",
		Name:      "request_duration_seconds",
		Help:      "Admin API latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	httpInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "memebot",
		Subsystem: "admin_http",
		Name:      "requests_inflight",
		Help:      "Admin API requests currently being served.",
	})
)

// Metrics instruments every request. Unmatched routes are labelled
// "unmatched" to bound cardinality.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
