package observability

import (
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics records trading and subscription activity.
type EngineMetrics struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	volume     *prometheus.CounterVec
	reserves   *prometheus.GaugeVec
	price      prometheus.Gauge
}

var (
	engineMetricsOnce sync.Once
	engineRegistry    *EngineMetrics
)

// Metrics returns the lazily-initialised engine metrics registry.
func Metrics() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "magna",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "State-mutating operations segmented by kind and outcome.",
			}, []string{"op", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "magna",
				Subsystem: "engine",
				Name:      "failures_total",
				Help:      "Failed operations segmented by kind.",
			}, []string{"op"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "magna",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution of state-mutating operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			volume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "magna",
				Subsystem: "engine",
				Name:      "volume_base_units",
				Help:      "Base-asset volume processed, in whole units, by flow.",
			}, []string{"flow"}),
			reserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "magna",
				Subsystem: "pool",
				Name:      "reserve_units",
				Help:      "Current reserve levels, in whole units, by side.",
			}, []string{"side"}),
			price: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "magna",
				Subsystem: "pool",
				Name:      "price",
				Help:      "Current pool price in base units per token.",
			}),
		}
		prometheus.MustRegister(
			engineRegistry.operations,
			engineRegistry.failures,
			engineRegistry.latency,
			engineRegistry.volume,
			engineRegistry.reserves,
			engineRegistry.price,
		)
	})
	return engineRegistry
}

// Observe records the outcome and latency of one operation.
func (m *EngineMetrics) Observe(op string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		m.failures.WithLabelValues(op).Inc()
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// AddVolume accumulates base-asset volume for the given flow ("buy", "sell",
// "subscribe").
func (m *EngineMetrics) AddVolume(flow string, amount *big.Int) {
	if m == nil || amount == nil {
		return
	}
	m.volume.WithLabelValues(flow).Add(wholeUnits(amount))
}

// SetReserves updates the pool reserve gauges and the derived price.
func (m *EngineMetrics) SetReserves(reserveToken, reserveBase *big.Int) {
	if m == nil {
		return
	}
	tokenUnits := wholeUnits(reserveToken)
	baseUnits := wholeUnits(reserveBase)
	m.reserves.WithLabelValues("token").Set(tokenUnits)
	m.reserves.WithLabelValues("base").Set(baseUnits)
	if tokenUnits > 0 {
		m.price.Set(baseUnits / tokenUnits)
	}
}

// wholeUnits reports a scaled amount as float whole units for gauge display.
// Metrics precision is informational only; ledger accounting never touches
// floats.
func wholeUnits(amount *big.Int) float64 {
	if amount == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(amount),
		new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)),
	).Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}
