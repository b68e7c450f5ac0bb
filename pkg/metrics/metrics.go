package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	TokenVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_verifications_total",
			Help: "Bearer token verifications by result",
		},
		[]string{"result"},
	)

	KeyRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_signing_key_refreshes_total",
			Help: "Signing key set refreshes by outcome",
		},
		[]string{"outcome"},
	)

	GuardDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_guard_denials_total",
			Help: "Requests rejected by an access guard",
		},
		[]string{"guard"},
	)

	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_total",
			Help: "Background job transitions by kind and resulting status",
		},
		[]string{"kind", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Background job run time from start to finish",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 900},
		},
		[]string{"kind"},
	)

	JobQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "job_queue_depth",
			Help: "Job descriptors waiting for a worker",
		},
	)

	AuditEventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_total",
			Help: "Security audit events accepted by the sink",
		},
		[]string{"action"},
	)

	AuditEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_events_dropped_total",
			Help: "Security audit events dropped because the buffer was full",
		},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)

func RecordTokenVerification(result string) {
	TokenVerifications.WithLabelValues(result).Inc()
}

func RecordKeyRefresh(ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	KeyRefreshes.WithLabelValues(outcome).Inc()
}

func RecordGuardDenial(guard string) {
	GuardDenials.WithLabelValues(guard).Inc()
}

func RecordJobTransition(kind, status string) {
	JobsTotal.WithLabelValues(kind, status).Inc()
}

func RecordJobDuration(kind string, d time.Duration) {
	JobDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// Middleware records request counts and latency keyed by the route template,
// so path parameters do not explode label cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
