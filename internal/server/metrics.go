package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "threadview",
		Subsystem: "server",
		Name:      "requests_total",
		Help:      "Total API requests, by route and status.",
	}, []string{"route", "status"})

	requestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "threadview",
		Subsystem: "server",
		Name:      "request_duration_seconds",
		Help:      "API request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	pageMessagesServed = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "threadview",
		Subsystem: "server",
		Name:      "page_messages",
		Help:      "Messages returned per page fetch.",
		Buckets:   []float64{0, 1, 5, 15, 30, 50, 100},
	})

	messagesDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "threadview",
		Subsystem: "server",
		Name:      "messages_deleted_total",
		Help:      "Total messages deleted through the bulk delete endpoint.",
	})

	eventsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "threadview",
		Subsystem: "server",
		Name:      "events_sent_total",
		Help:      "Conversation events written to WebSocket clients, by kind.",
	}, []string{"kind"})

	rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "threadview",
		Subsystem: "server",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "threadview",
		Subsystem: "server",
		Name:      "ws_connections_active",
		Help:      "Number of active WebSocket connections.",
	})
)

// metricsMiddleware records request counts and latency by route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		requestDurationSeconds.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
