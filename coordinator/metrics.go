package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "router"
const dispatchSubsystem = "dispatch"

var globalDispatchMetrics = newDispatchMetrics()

type dispatchMetrics struct {
	// labels: db
	sends      *prometheus.CounterVec
	retries    *prometheus.CounterVec
	failures   *prometheus.CounterVec
	interrupts *prometheus.CounterVec
}

// PrometheusCollectors returns all prometheus metrics for the coordinator
// package.
func PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		globalDispatchMetrics.sends,
		globalDispatchMetrics.retries,
		globalDispatchMetrics.failures,
		globalDispatchMetrics.interrupts,
	}
}

func newDispatchMetrics() *dispatchMetrics {
	labels := []string{"db"}
	return &dispatchMetrics{
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: dispatchSubsystem,
			Name:      "sends_total",
			Help:      "Number of remote commands handed to the executor",
		}, labels),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: dispatchSubsystem,
			Name:      "retries_total",
			Help:      "Number of per-shard retries after retriable errors",
		}, labels),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: dispatchSubsystem,
			Name:      "failures_total",
			Help:      "Number of per-shard failure responses emitted",
		}, labels),
		interrupts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: dispatchSubsystem,
			Name:      "interrupts_total",
			Help:      "Number of dispatches interrupted by their caller",
		}, labels),
	}
}

// engineDispatchMetrics is the per-dispatcher view of the global metrics.
type engineDispatchMetrics struct {
	sends      prometheus.Counter
	retries    prometheus.Counter
	failures   prometheus.Counter
	interrupts prometheus.Counter
}

func newEngineDispatchMetrics(db string) *engineDispatchMetrics {
	l := prometheus.Labels{"db": db}
	return &engineDispatchMetrics{
		sends:      globalDispatchMetrics.sends.With(l),
		retries:    globalDispatchMetrics.retries.With(l),
		failures:   globalDispatchMetrics.failures.With(l),
		interrupts: globalDispatchMetrics.interrupts.With(l),
	}
}
