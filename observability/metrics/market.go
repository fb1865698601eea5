package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type MarketMetrics struct {
	operations   *prometheus.CounterVec
	liveListings prometheus.Gauge
	settledValue prometheus.Counter
}

var (
	marketOnce     sync.Once
	marketRegistry *MarketMetrics
)

func Market() *MarketMetrics {
	marketOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_operations_total",
				Help: "Count of marketplace operations by type and result.",
			}, []string{"op", "result"}),
			liveListings: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "market_live_listings",
				Help: "Number of listing records currently live.",
			}),
			settledValue: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_settled_value_total",
				Help: "Cumulative value units settled through Buy operations.",
			}),
		}
		prometheus.MustRegister(
			marketRegistry.operations,
			marketRegistry.liveListings,
			marketRegistry.settledValue,
		)
	})
	return marketRegistry
}

// ObserveOperation records the outcome of a single state transition.
func (m *MarketMetrics) ObserveOperation(op, result string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, result).Inc()
}

// SetLiveListings updates the live listing gauge after a feed refresh.
func (m *MarketMetrics) SetLiveListings(n int) {
	if m == nil {
		return
	}
	m.liveListings.Set(float64(n))
}

// AddSettledValue accumulates the value moved by a successful Buy.
func (m *MarketMetrics) AddSettledValue(v float64) {
	if m == nil || v < 0 {
		return
	}
	m.settledValue.Add(v)
}
