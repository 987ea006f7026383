package telemetry

import (
	"github.com/modulrcloud/chain-tracker/structures"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chain_tracker"

// Collector exposes engine health as Prometheus series. A nil *Collector is
// valid and records nothing.
type Collector struct {
	refreshes          *prometheus.CounterVec
	timestampFallbacks prometheus.Counter
	cachedBlocks       prometheus.Gauge
	cachedTransactions prometheus.Gauge
	tps                prometheus.Gauge
	blockHeight        prometheus.Gauge
	avgBlockTime       prometheus.Gauge
}

func NewCollector(reg prometheus.Registerer) *Collector {

	c := &Collector{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Cache refresh attempts by result.",
		}, []string{"result"}),
		timestampFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timestamp_fallbacks_total",
			Help:      "Transactions whose block timestamp was replaced by wall-clock time.",
		}),
		cachedBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cached_blocks",
			Help:      "Blocks held in the recent-block cache.",
		}),
		cachedTransactions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cached_transactions",
			Help:      "Transactions held in the recent-transaction cache.",
		}),
		tps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tps",
			Help:      "Weighted transactions per second.",
		}),
		blockHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "block_height",
			Help:      "Chain height reported by the data source.",
		}),
		avgBlockTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "avg_block_time_seconds",
			Help:      "Mean delta between recent block timestamps.",
		}),
	}

	reg.MustRegister(
		c.refreshes,
		c.timestampFallbacks,
		c.cachedBlocks,
		c.cachedTransactions,
		c.tps,
		c.blockHeight,
		c.avgBlockTime,
	)

	return c
}

func (c *Collector) ObserveRefresh(ok bool) {

	if c == nil {
		return
	}

	result := "ok"
	if !ok {
		result = "failed"
	}

	c.refreshes.WithLabelValues(result).Inc()
}

func (c *Collector) AddTimestampFallbacks(n int) {

	if c == nil || n <= 0 {
		return
	}

	c.timestampFallbacks.Add(float64(n))
}

func (c *Collector) SetCacheSizes(blocks, transactions int) {

	if c == nil {
		return
	}

	c.cachedBlocks.Set(float64(blocks))
	c.cachedTransactions.Set(float64(transactions))
}

func (c *Collector) SetMetrics(m structures.Metrics) {

	if c == nil {
		return
	}

	c.tps.Set(m.Tps)
	c.blockHeight.Set(float64(m.BlockHeight))
	c.avgBlockTime.Set(m.AvgBlockTime)
}
