package auth

import (
	"github.com/prometheus/client_golang/prometheus"

	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
)

const metricsNamespace = "gateway"

// Metric label values.
const (
	resultSuccess = "success"
	resultFailure = "failure"
	resultBypass  = "bypass"
)

// Collector is a prometheus.Collector for authentication outcomes and JWKS
// refreshes. A nil *Collector records nothing.
type Collector struct {
	authRequests *prometheus.CounterVec
	jwksRefresh  *prometheus.CounterVec
	jwksKeys     prometheus.Gauge
}

// NewMetricsCollector returns a new Collector. Register it with a
// prometheus.Registerer before use.
func NewMetricsCollector() *Collector {
	return &Collector{
		authRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "auth_requests_total",
				Help:      "Authentication attempts by result and error type.",
			}, []string{"result", "error_type"},
		),
		jwksRefresh: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "jwks_refresh_total",
				Help:      "JWKS refreshes by result.",
			}, []string{"result"},
		),
		jwksKeys: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "jwks_keys",
				Help:      "The number of signing keys currently cached.",
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.authRequests.Describe(ch)
	c.jwksRefresh.Describe(ch)
	c.jwksKeys.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.authRequests.Collect(ch)
	c.jwksRefresh.Collect(ch)
	c.jwksKeys.Collect(ch)
}

func (c *Collector) observeAuth(result string, err error) {
	if c == nil {
		return
	}
	errType := ""
	if err != nil {
		errType = sserr.GetType(err).String()
	}
	c.authRequests.WithLabelValues(result, errType).Inc()
}

func (c *Collector) observeRefresh(err error, keys int) {
	if c == nil {
		return
	}
	if err != nil {
		c.jwksRefresh.WithLabelValues(resultFailure).Inc()
		return
	}
	c.jwksRefresh.WithLabelValues(resultSuccess).Inc()
	c.jwksKeys.Set(float64(keys))
}
