package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the engine
type Metrics struct {
	ChatRequests       prometheus.Counter
	ChatRequestLatency prometheus.Histogram
	ChatErrors         *prometheus.CounterVec

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	SummarizationTriggers *prometheus.CounterVec // by reason code
	SummarizationFailures prometheus.Counter

	ChunkedResponses prometheus.Counter
	MessagesPruned   prometheus.Counter
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics(responseCache *ResponseCache) *Metrics {
	metrics := &Metrics{
		ChatRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "thrivecoach_chat_requests_total",
			Help: "Total number of chat turns processed",
		}),

		ChatRequestLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "thrivecoach_chat_request_duration_seconds",
			Help:    "Chat turn latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60}, // LLM calls dominate the tail
		}),

		ChatErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "thrivecoach_chat_errors_total",
			Help: "Total number of chat errors by type",
		}, []string{"error_type"}),

		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "thrivecoach_response_cache_hits_total",
			Help: "Response cache hits",
		}),

		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "thrivecoach_response_cache_misses_total",
			Help: "Response cache misses",
		}),

		SummarizationTriggers: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "thrivecoach_summarization_triggers_total",
			Help: "Memory summarization runs by trigger reason",
		}, []string{"reason"}),

		SummarizationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "thrivecoach_summarization_failures_total",
			Help: "Memory summarization attempts that failed or were rejected",
		}),

		ChunkedResponses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "thrivecoach_chunked_responses_total",
			Help: "Completions split by the chunker",
		}),

		MessagesPruned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "thrivecoach_messages_pruned_total",
			Help: "Chat messages deleted by the history pruner",
		}),
	}

	// Gauge backed by the response cache's live entry count
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "thrivecoach_response_cache_entries",
			Help: "Current number of response cache entries",
		},
		func() float64 {
			if responseCache != nil {
				return float64(responseCache.Len())
			}
			return 0
		},
	))

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}

// RecordChatRequest records a chat turn
func (m *Metrics) RecordChatRequest() {
	m.ChatRequests.Inc()
}

// RecordChatLatency records turn latency
func (m *Metrics) RecordChatLatency(seconds float64) {
	m.ChatRequestLatency.Observe(seconds)
}

// RecordChatError records a chat error by type
func (m *Metrics) RecordChatError(errorType string) {
	m.ChatErrors.WithLabelValues(errorType).Inc()
}

// RecordCacheHit records a response cache hit
func (m *Metrics) RecordCacheHit() { m.CacheHits.Inc() }

// RecordCacheMiss records a response cache miss
func (m *Metrics) RecordCacheMiss() { m.CacheMisses.Inc() }

// RecordSummarization records a summarization run by trigger reason
func (m *Metrics) RecordSummarization(reason string) {
	m.SummarizationTriggers.WithLabelValues(reason).Inc()
}

// RecordSummarizationFailure records a failed or rejected attempt
func (m *Metrics) RecordSummarizationFailure() {
	m.SummarizationFailures.Inc()
}

// RecordChunkedResponse records one chunked completion
func (m *Metrics) RecordChunkedResponse() {
	m.ChunkedResponses.Inc()
}

// RecordMessagesPruned records deleted chat messages
func (m *Metrics) RecordMessagesPruned(count int) {
	m.MessagesPruned.Add(float64(count))
}
