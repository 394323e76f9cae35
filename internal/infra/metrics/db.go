package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolConns, dbPoolEmptyAcquire) }

var (
	dbPoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "turn_log_db_pool_conns",
			Help: "Connections in the turn log Postgres pool by state.",
		},
		[]string{"state"}, // total|idle|acquired
	)
	dbPoolEmptyAcquire = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "turn_log_db_pool_empty_acquire",
			Help: "Cumulative acquires that had to wait for a free connection.",
		},
	)
)

func SetDBPoolStats(total, idle, acquired int32, emptyAcquire int64) {
	dbPoolConns.WithLabelValues("total").Set(float64(total))
	dbPoolConns.WithLabelValues("idle").Set(float64(idle))
	dbPoolConns.WithLabelValues("acquired").Set(float64(acquired))
	dbPoolEmptyAcquire.Set(float64(emptyAcquire))
}
