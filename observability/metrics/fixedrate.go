package metrics

import (
	"math/big"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"fixedswap/core/events"
)

// FixedRateMetrics tracks exchange activity. It implements events.Emitter so
// it can be attached to the settled event stream.
type FixedRateMetrics struct {
	swaps     *prometheus.CounterVec
	volume    *prometheus.CounterVec
	fees      *prometheus.CounterVec
	exchanges prometheus.Gauge
}

var (
	fixedRateOnce     sync.Once
	fixedRateRegistry *FixedRateMetrics
)

// FixedRate returns the lazily-initialised exchange metrics registry.
func FixedRate() *FixedRateMetrics {
	fixedRateOnce.Do(func() {
		fixedRateRegistry = &FixedRateMetrics{
			swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fixedrate_swaps_total",
				Help: "Count of swap attempts by direction and outcome.",
			}, []string{"direction", "outcome"}),
			volume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fixedrate_swap_volume",
				Help: "Raw token units moved by settled swaps.",
			}, []string{"asset", "direction"}),
			fees: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fixedrate_fees_collected",
				Help: "Raw base-asset units routed to fee collectors.",
			}, []string{"kind"}),
			exchanges: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "fixedrate_exchanges",
				Help: "Number of registered exchanges.",
			}),
		}
		prometheus.MustRegister(
			fixedRateRegistry.swaps,
			fixedRateRegistry.volume,
			fixedRateRegistry.fees,
			fixedRateRegistry.exchanges,
		)
	})
	return fixedRateRegistry
}

// Emit implements events.Emitter.
func (m *FixedRateMetrics) Emit(evt events.Event) {
	if m == nil {
		return
	}
	switch e := evt.(type) {
	case events.ExchangeSwapped:
		m.swaps.WithLabelValues(e.Direction, "settled").Inc()
		m.volume.WithLabelValues("data", e.Direction).Add(toFloat(e.DataTokenSwappedAmount))
		m.volume.WithLabelValues("base", e.Direction).Add(toFloat(e.BaseTokenSwappedAmount))
		m.fees.WithLabelValues("protocol").Add(toFloat(e.ProtocolFeeAmount))
		m.fees.WithLabelValues("market").Add(toFloat(e.MarketFeeAmount))
	case events.ExchangeCreated:
		m.exchanges.Inc()
	}
}

// ObserveRejected records a swap that failed before settling.
func (m *FixedRateMetrics) ObserveRejected(direction, reason string) {
	if m == nil {
		return
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "error"
	}
	m.swaps.WithLabelValues(direction, reason).Inc()
}

// SetExchanges overwrites the exchange gauge, typically at startup.
func (m *FixedRateMetrics) SetExchanges(n int) {
	if m == nil {
		return
	}
	m.exchanges.Set(float64(n))
}

func toFloat(v *big.Int) float64 {
	if v == nil || v.Sign() <= 0 {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
