package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		turnsTotal,
		turnLatency,
		turnStageSeconds,
		turnDegradedTotal,
		emotionParseTotal,
		linkSourceTotal,
	)
}

var (
	// state: completed|errored
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turns_total",
			Help: "Finished voice turns by track and terminal state.",
		},
		[]string{"track", "state"},
	)

	turnLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "turn_duration_seconds",
			Help:    "End-to-end duration of a voice turn.",
			Buckets: []float64{0.5, 1, 2, 3, 5, 8, 13, 20, 30},
		},
		[]string{"track"},
	)

	turnStageSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "turn_stage_duration_seconds",
			Help:    "Duration of each pipeline stage.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
		[]string{"stage"},
	)

	turnDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turn_degraded_total",
			Help: "Stages that fell back to a degraded result.",
		},
		[]string{"stage"},
	)

	// strategy: strict_json|label_suffix|embedded_object|call_failed|unparsed
	emotionParseTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emotion_parse_total",
			Help: "Emotion classifier outputs by the parse strategy that accepted them.",
		},
		[]string{"strategy"},
	)

	linkSourceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommend_link_source_total",
			Help: "Recommendation link lists by where the links came from.",
		},
		[]string{"source"},
	)
)

func IncTurn(track, state string) {
	turnsTotal.WithLabelValues(norm(track), norm(state)).Inc()
}

func ObserveTurnLatency(track string, d time.Duration) {
	turnLatency.WithLabelValues(norm(track)).Observe(d.Seconds())
}

func ObserveStage(stage string, d time.Duration) {
	turnStageSeconds.WithLabelValues(norm(stage)).Observe(d.Seconds())
}

func IncDegraded(stage string) {
	turnDegradedTotal.WithLabelValues(norm(stage)).Inc()
}

func IncEmotionParse(strategy string) {
	emotionParseTotal.WithLabelValues(norm(strategy)).Inc()
}

func IncLinkSource(source string) {
	linkSourceTotal.WithLabelValues(norm(source)).Inc()
}
