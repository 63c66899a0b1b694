package metrics

import "github.com/prometheus/client_golang/prometheus"

// RPC Prometheus metrics.
var (
	RPCCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mondo",
			Name:      "rpc_calls_total",
			Help:      "Total number of RPC method calls",
		},
		[]string{"method", "status"},
	)

	RPCCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mondo",
			Name:      "rpc_call_duration_seconds",
			Help:      "RPC method call duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method"},
	)

	RPCBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mondo",
			Name:      "rpc_batch_size",
			Help:      "Number of calls per batch request",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		},
	)
)

var rpcMetricsRegistered bool

// RegisterRPCMetrics registers Prometheus RPC metrics. Must be called once from main.
func RegisterRPCMetrics() {
	if rpcMetricsRegistered {
		return
	}
	prometheus.MustRegister(RPCCallsTotal)
	prometheus.MustRegister(RPCCallDuration)
	prometheus.MustRegister(RPCBatchSize)
	rpcMetricsRegistered = true
}
