package mcpclient

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
)

// Call results used as metric labels.
const (
	resultSuccess  = "success"
	resultError    = "error"
	resultRejected = "rejected"
	resultRPCError = "rpc_error"
)

// Collector is a prometheus.Collector for MCP calls. A nil *Collector
// records nothing.
type Collector struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetricsCollector returns a new Collector. Register it with a
// prometheus.Registerer before use.
func NewMetricsCollector() *Collector {
	return &Collector{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "mcp_calls_total",
				Help:      "MCP calls by server and result.",
			}, []string{"server", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gateway",
				Name:      "mcp_call_duration_seconds",
				Help:      "MCP call latency, retries included.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"server", "method"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.calls.Describe(ch)
	c.duration.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.calls.Collect(ch)
	c.duration.Collect(ch)
}

func (c *Collector) observe(server, method string, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	c.calls.WithLabelValues(server, callResult(err)).Inc()
	c.duration.WithLabelValues(server, method).Observe(elapsed.Seconds())
}

func callResult(err error) string {
	var rpcErr *RPCError
	switch {
	case err == nil:
		return resultSuccess
	case sserr.HasCode(err, sserr.CodeCircuitOpen):
		return resultRejected
	case errors.As(err, &rpcErr):
		return resultRPCError
	default:
		return resultError
	}
}
