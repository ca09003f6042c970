// Package metrics exposes prometheus instrumentation for the swap pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// SwapMetrics counts quote, arbitrage and execution outcomes.
type SwapMetrics struct {
	QuotesFetched      *prometheus.CounterVec
	QuoteFailures      *prometheus.CounterVec
	ArbitrageAttempts  prometheus.Counter
	ArbitrageFallbacks prometheus.Counter
	DirectExecutions   prometheus.Counter
	SwapFailures       prometheus.Counter
	FlashLoanPremiums  prometheus.Counter
	QuoteLatency       prometheus.Histogram
	BundleInclusion    *prometheus.CounterVec
}

// NewSwapMetrics registers swap metrics under the given namespace using
// the provided registerer (prometheus.DefaultRegisterer in production,
// a private registry in tests).
func NewSwapMetrics(namespace string, reg prometheus.Registerer) *SwapMetrics {
	factory := promauto.With(reg)
	return &SwapMetrics{
		QuotesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_fetched_total",
			Help:      "Total number of quotes fetched per venue",
		}, []string{"venue"}),
		QuoteFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_failures_total",
			Help:      "Total number of quote fetch failures per venue",
		}, []string{"venue"}),
		ArbitrageAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arbitrage_attempts_total",
			Help:      "Total number of flash-loan arbitrage attempts",
		}),
		ArbitrageFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arbitrage_fallbacks_total",
			Help:      "Total number of arbitrage attempts that fell back to a direct swap",
		}),
		DirectExecutions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "direct_executions_total",
			Help:      "Total number of direct swap executions",
		}),
		SwapFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swap_failures_total",
			Help:      "Total number of swaps that failed on every path",
		}),
		FlashLoanPremiums: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flashloan_premiums_wei_total",
			Help:      "Total flash loan premiums committed, in the borrowed asset's smallest unit",
		}),
		QuoteLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_latency_seconds",
			Help:      "Latency of the concurrent quote fan-out",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		BundleInclusion: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundle_inclusion_total",
			Help:      "Bundle submission outcomes by result",
		}, []string{"result"}),
	}
}

// CounterValue reads the current value of a counter. Used by status
// reporting and tests.
func CounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil || m.Counter == nil {
		return 0
	}
	return m.Counter.GetValue()
}
