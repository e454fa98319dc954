package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	connectorOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlchat_connector_ops_total",
			Help: "Connector operations by engine, operation and outcome.",
		},
		[]string{"engine", "op", "outcome"},
	)
	connectorOpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlchat_connector_op_duration_seconds",
			Help:    "Connector operation latency including connection setup.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"engine", "op"},
	)
	schemaCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlchat_schema_cache_lookups_total",
			Help: "Schema cache lookups by result (hit, miss, error).",
		},
		[]string{"result"},
	)
	chatTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlchat_chat_turns_total",
			Help: "Chat turns by outcome.",
		},
		[]string{"outcome"},
	)
	streamChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlchat_stream_chunks_total",
			Help: "Completion chunks appended to assistant messages.",
		},
	)
	promptTokens = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlchat_prompt_tokens",
			Help:    "Token count of prompts sent to the completion endpoint.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 3000, 4000, 8000, 16000},
		},
	)
)

func init() {
	prometheus.MustRegister(
		connectorOpsTotal,
		connectorOpDurationSeconds,
		schemaCacheLookupsTotal,
		chatTurnsTotal,
		streamChunksTotal,
		promptTokens,
	)
}

func ObserveConnectorOp(engine, op, outcome string, elapsed time.Duration) {
	connectorOpsTotal.WithLabelValues(engine, op, outcome).Inc()
	connectorOpDurationSeconds.WithLabelValues(engine, op).Observe(elapsed.Seconds())
}

func ObserveSchemaCacheLookup(result string) {
	schemaCacheLookupsTotal.WithLabelValues(result).Inc()
}

func ObserveChatTurn(outcome string) {
	chatTurnsTotal.WithLabelValues(outcome).Inc()
}

func IncrementStreamChunks() {
	streamChunksTotal.Inc()
}

func ObservePromptTokens(tokens int) {
	if tokens < 0 {
		tokens = 0
	}
	promptTokens.Observe(float64(tokens))
}
