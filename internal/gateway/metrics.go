package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/StricklySoft/agentcore-gateway/pkg/auth"
	"github.com/StricklySoft/agentcore-gateway/pkg/mcpclient"
	"github.com/StricklySoft/agentcore-gateway/pkg/resilience"
)

var breakerStateDesc = prometheus.NewDesc(
	"gateway_breaker_state",
	"Circuit breaker state: 0 closed, 1 half-open, 2 open.",
	[]string{"name"}, nil,
)

var breakerFailuresDesc = prometheus.NewDesc(
	"gateway_breaker_consecutive_failures",
	"Consecutive failures counted by a circuit breaker.",
	[]string{"name"}, nil,
)

// breakerCollector reports the breakers returned by source at scrape time,
// so breakers created after registration are included.
type breakerCollector struct {
	source func() []*resilience.Breaker
}

// Describe is part of the prometheus.Collector interface.
func (c breakerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- breakerStateDesc
	ch <- breakerFailuresDesc
}

// Collect is part of the prometheus.Collector interface.
func (c breakerCollector) Collect(ch chan<- prometheus.Metric) {
	for _, b := range c.source() {
		snap := b.Snapshot()
		ch <- prometheus.MustNewConstMetric(breakerStateDesc, prometheus.GaugeValue, breakerValue(snap.State), snap.Name)
		ch <- prometheus.MustNewConstMetric(breakerFailuresDesc, prometheus.GaugeValue, float64(snap.FailureCount), snap.Name)
	}
}

func breakerValue(s resilience.State) float64 {
	switch s {
	case resilience.StateHalfOpen:
		return 1
	case resilience.StateOpen:
		return 2
	default:
		return 0
	}
}

// newRegistry returns a registry with the runtime collectors and every
// gateway collector.
func newRegistry(authMetrics *auth.Collector, mcpMetrics *mcpclient.Collector, breakers func() []*resilience.Breaker) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		authMetrics,
		mcpMetrics,
		breakerCollector{source: breakers},
	)
	return reg
}
