package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SwapMetrics tracks invocations of the swap contract.
type SwapMetrics struct {
	executed      prometheus.Counter
	failures      *prometheus.CounterVec
	countQueries  prometheus.Counter
	simulations   prometheus.Counter
	duration      *prometheus.HistogramVec
	subscribers   prometheus.Gauge
	eventsEmitted prometheus.Counter
}

var (
	swapOnce     sync.Once
	swapRegistry *SwapMetrics
)

// Swap returns the process-wide swap metrics, registering them on first use.
func Swap() *SwapMetrics {
	swapOnce.Do(func() {
		swapRegistry = &SwapMetrics{
			executed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "swap_executed_total",
				Help: "Count of committed swap invocations.",
			}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "swap_failures_total",
				Help: "Count of aborted swap invocations by reason.",
			}, []string{"reason"}),
			countQueries: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "swap_count_queries_total",
				Help: "Count of get_count reads.",
			}),
			simulations: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "swap_simulations_total",
				Help: "Count of simulated swap invocations.",
			}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "swap_invocation_duration_seconds",
				Help:    "Wall time spent executing invocations by function.",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
			}, []string{"function"}),
			subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "swap_event_subscribers",
				Help: "Number of live event stream subscribers.",
			}),
			eventsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "swap_events_logged_total",
				Help: "Count of events appended to the host event log.",
			}),
		}
		prometheus.MustRegister(
			swapRegistry.executed,
			swapRegistry.failures,
			swapRegistry.countQueries,
			swapRegistry.simulations,
			swapRegistry.duration,
			swapRegistry.subscribers,
			swapRegistry.eventsEmitted,
		)
	})
	return swapRegistry
}

func (m *SwapMetrics) ObserveExecuted(events int) {
	if m == nil {
		return
	}
	m.executed.Inc()
	m.eventsEmitted.Add(float64(events))
}

func (m *SwapMetrics) ObserveFailure(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.failures.WithLabelValues(reason).Inc()
}

func (m *SwapMetrics) ObserveCountQuery() {
	if m == nil {
		return
	}
	m.countQueries.Inc()
}

func (m *SwapMetrics) ObserveSimulation() {
	if m == nil {
		return
	}
	m.simulations.Inc()
}

func (m *SwapMetrics) ObserveDuration(function string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(function).Observe(elapsed.Seconds())
}

func (m *SwapMetrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}
