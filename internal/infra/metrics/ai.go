package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiTokensIn,
		aiTokensOut,
		aiCallsLatencyMs,
		aiLimiterWaits,
	)
}

var (
	aiTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_in",
			Help: "Sum of prompt (input) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_out",
			Help: "Sum of completion (output) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	// op: chat|complete_json|stt|tts|search
	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_ms",
			Help:    "AI call latency distribution in milliseconds, up to the first byte for streams.",
			Buckets: []float64{25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
		},
		[]string{"provider", "op", "success"},
	)

	aiLimiterWaits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_limiter_waits_total",
			Help: "Calls that had to wait for a concurrency slot, by provider.",
		},
		[]string{"provider"},
	)
)

func ObserveAICall(provider, op string, d time.Duration, err error) {
	aiCallsLatencyMs.WithLabelValues(norm(provider), norm(op), strconv.FormatBool(err == nil)).
		Observe(float64(d.Milliseconds()))
}

func AddTokens(provider, model string, in, out int) {
	if in > 0 {
		aiTokensIn.WithLabelValues(norm(provider), norm(model)).Add(float64(in))
	}
	if out > 0 {
		aiTokensOut.WithLabelValues(norm(provider), norm(model)).Add(float64(out))
	}
}

func IncLimiterWait(provider string) {
	aiLimiterWaits.WithLabelValues(norm(provider)).Inc()
}
