package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TranslationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interchat_translations_total",
			Help: "Translations resolved, by outcome (identity, cache, llm, failed)",
		},
		[]string{"outcome"},
	)

	TranslationAttemptsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interchat_translation_attempts_rejected_total",
			Help: "LLM translation attempts rejected by the quality check",
		},
		[]string{"reason"},
	)

	CreditsCharged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interchat_credits_charged_total",
		Help: "Credits deducted for live translations",
	})

	CreditsGranted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interchat_credits_granted_total",
			Help: "Credits added to balances, by transaction type",
		},
		[]string{"type"},
	)

	KnowledgeSourcesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interchat_knowledge_sources_processed_total",
			Help: "Knowledge sources processed, by final status",
		},
		[]string{"status"},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interchat_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "interchat_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// GinMiddleware records request counts and latency per matched route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
