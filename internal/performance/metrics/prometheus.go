package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vuramp"

// Collectors are the Prometheus views of a run. Names follow the k6
// built-in metrics (vus, iterations, http_reqs, http_req_duration, checks).
type Collectors struct {
	VUs             prometheus.Gauge
	Iterations      prometheus.Counter
	HTTPReqs        *prometheus.CounterVec
	HTTPReqDuration prometheus.Histogram
	Checks          *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewCollectors creates the collectors and registers them on reg.
// A nil reg gets a fresh private registry.
func NewCollectors(reg *prometheus.Registry) (*Collectors, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collectors{
		VUs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vus",
			Help:      "Current number of active virtual users.",
		}),
		Iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Number of completed iterations.",
		}),
		HTTPReqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_reqs_total",
			Help:      "Number of HTTP requests issued, by response status.",
		}, []string{"status"}),
		HTTPReqDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_req_duration_seconds",
			Help:      "HTTP request duration.",
			Buckets:   prometheus.DefBuckets,
		}),
		Checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_total",
			Help:      "Number of check evaluations, by check name and result.",
		}, []string{"check", "result"}),
		registry: reg,
	}

	for _, collector := range []prometheus.Collector{c.VUs, c.Iterations, c.HTTPReqs, c.HTTPReqDuration, c.Checks} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// MustNewCollectors is like NewCollectors but panics on registration errors.
func MustNewCollectors(reg *prometheus.Registry) *Collectors {
	c, err := NewCollectors(reg)
	if err != nil {
		panic(err)
	}
	return c
}

// Gatherer returns the registry the collectors are registered on.
func (c *Collectors) Gatherer() prometheus.Gatherer {
	return c.registry
}
