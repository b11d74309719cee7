package dex

import (
	"github.com/defistate/defistate-dex-go/protocols/clmm"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultOK    = "ok"
	resultError = "error"
)

// Metrics holds the collectors of one exchange instance.
type Metrics struct {
	opDuration    *prometheus.HistogramVec
	opTotal       *prometheus.CounterVec
	swapVolume    *prometheus.CounterVec
	openPositions prometheus.Gauge
	pools         prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dex",
			Name:      "operation_duration_seconds",
			Help:      "Duration of exchange operations, committed or not.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
		}, []string{"op"}),
		opTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dex",
			Name:      "operations_total",
			Help:      "Exchange operations by outcome.",
		}, []string{"op", "result"}),
		swapVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dex",
			Name:      "swap_volume_total",
			Help:      "Amount sold into pools, per input token, in the token's smallest unit.",
		}, []string{"token"}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dex",
			Name:      "open_positions",
			Help:      "Number of open liquidity positions.",
		}),
		pools: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dex",
			Name:      "pools",
			Help:      "Number of pools ever created.",
		}),
	}
	reg.MustRegister(m.opDuration, m.opTotal, m.swapVolume, m.openPositions, m.pools)
	return m
}

type swapVolume struct {
	token  clmm.TokenID
	amount clmm.Amount
}

func (m *Metrics) observeCommit(op string, c *ContractV0, volumes []swapVolume) {
	m.opTotal.WithLabelValues(op, resultOK).Inc()
	for _, v := range volumes {
		m.swapVolume.WithLabelValues(v.token.Hex()).Add(clmm.AmountToFloat(v.amount))
	}
	m.openPositions.Set(float64(c.positionToPool.Len()))
	m.pools.Set(float64(c.poolCount))
}

func (m *Metrics) observeFailure(op string) {
	m.opTotal.WithLabelValues(op, resultError).Inc()
}
