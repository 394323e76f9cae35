package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		suggestionDecisionsTotal,
		suggestionFeedbackTotal,
	)
}

var (
	// outcome: allowed|blocked, reason empty when allowed
	suggestionDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestion_decisions_total",
			Help: "Proactive suggestion decisions by outcome and blocking reason.",
		},
		[]string{"outcome", "reason"},
	)

	suggestionFeedbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestion_feedback_total",
			Help: "Feedback on proactive suggestions by type.",
		},
		[]string{"type", "accepted"},
	)
)

func IncSuggestionDecision(outcome, reason string) {
	suggestionDecisionsTotal.WithLabelValues(norm(outcome), norm(reason)).Inc()
}

func IncSuggestionFeedback(suggestionType string, accepted bool) {
	suggestionFeedbackTotal.WithLabelValues(norm(suggestionType), strconv.FormatBool(accepted)).Inc()
}
