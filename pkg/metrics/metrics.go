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
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	dbQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Database query latency by operation and table.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"operation", "table"})

	watchEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watch_events_total",
		Help: "Playback telemetry events ingested, by event type.",
	}, []string{"type"})

	watchViolationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watch_violations_total",
		Help: "Integrity violations detected during ingest.",
	})

	trackedSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "watch_tracked_sessions",
		Help: "Playback sessions currently held by the in-memory tracker.",
	})

	broadcastSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "broadcast_subscribers",
		Help: "Observers currently subscribed to the event feed.",
	})

	broadcastDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broadcast_dropped_total",
		Help: "Events dropped because a subscriber buffer was full.",
	})

	completionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "video_completions_total",
		Help: "Verified video completions recorded.",
	})
)

// Middleware records request counts and latency per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordDBQuery is called from the gorm logger for every statement.
func RecordDBQuery(operation, table string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordWatchEvent counts an ingested event and, when flagged, a violation.
func RecordWatchEvent(eventType string, violation bool) {
	watchEventsTotal.WithLabelValues(eventType).Inc()
	if violation {
		watchViolationsTotal.Inc()
	}
}

// SetTrackedSessions reports the live session count after tracker changes.
func SetTrackedSessions(n int) {
	trackedSessions.Set(float64(n))
}

// SubscriberAdded and SubscriberRemoved track the broadcast fan-out size.
func SubscriberAdded()   { broadcastSubscribers.Inc() }
func SubscriberRemoved() { broadcastSubscribers.Dec() }

// RecordDroppedBroadcast counts a slow-subscriber drop.
func RecordDroppedBroadcast() { broadcastDroppedTotal.Inc() }

// RecordCompletion counts a verified completion.
func RecordCompletion() { completionsTotal.Inc() }
