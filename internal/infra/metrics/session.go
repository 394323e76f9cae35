package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		activeSessions,
		sessionsSweptTotal,
	)
}

var (
	activeSessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Sessions currently held by a state store.",
		},
		[]string{"store"}, // 'history', 'suggestion'
	)

	sessionsSweptTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_swept_total",
			Help: "Idle sessions evicted by the sweeper.",
		},
		[]string{"store"},
	)
)

func SetActiveSessions(store string, n int) {
	activeSessions.WithLabelValues(norm(store)).Set(float64(n))
}

func AddSessionsSwept(store string, n int) {
	sessionsSweptTotal.WithLabelValues(norm(store)).Add(float64(n))
}
