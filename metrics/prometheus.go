// Package metrics exports lending metrics to Prometheus.
//
// Collector implements library.MetricsCollector. Metric vectors are created
// lazily on first use, keyed by name, with the label keys of that first
// observation. Durations become histograms, counters become counters and
// recorded values are accumulated into a summary.
package metrics

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/warp/lending-engine/library"
)

const namespace = "library"

// OverdueLoans is the gauge the overdue monitor publishes.
const OverdueLoans = "lending_overdue_loans"

type Collector struct {
	reg prometheus.Registerer

	mu         sync.Mutex
	histograms map[string]*prometheus.HistogramVec
	counters   map[string]*prometheus.CounterVec
	summaries  map[string]*prometheus.SummaryVec
	gauges     map[string]prometheus.Gauge
}

var _ library.MetricsCollector = (*Collector)(nil)

// New returns a Collector registering its vectors on reg.
func New(reg prometheus.Registerer) *Collector {
	return &Collector{
		reg:        reg,
		histograms: make(map[string]*prometheus.HistogramVec),
		counters:   make(map[string]*prometheus.CounterVec),
		summaries:  make(map[string]*prometheus.SummaryVec),
		gauges:     make(map[string]prometheus.Gauge),
	}
}

func (c *Collector) RecordDuration(metric string, d time.Duration, labels map[string]string) {
	c.mu.Lock()
	vec, ok := c.histograms[metric]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      metric,
			Help:      "Duration of lending operations in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, labelKeys(labels))
		vec = register(c.reg, vec)
		c.histograms[metric] = vec
	}
	c.mu.Unlock()
	vec.With(labels).Observe(d.Seconds())
}

func (c *Collector) IncrementCounter(metric string, labels map[string]string) {
	c.mu.Lock()
	vec, ok := c.counters[metric]
	if !ok {
		vec = register(c.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      metric,
			Help:      "Count of " + metric + ".",
		}, labelKeys(labels)))
		c.counters[metric] = vec
	}
	c.mu.Unlock()
	vec.With(labels).Inc()
}

func (c *Collector) RecordValue(metric string, value float64, labels map[string]string) {
	c.mu.Lock()
	vec, ok := c.summaries[metric]
	if !ok {
		vec = register(c.reg, prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Namespace: namespace,
			Name:      metric,
			Help:      "Observed values of " + metric + ".",
		}, labelKeys(labels)))
		c.summaries[metric] = vec
	}
	c.mu.Unlock()
	vec.With(labels).Observe(value)
}

// Gauge returns the unlabelled gauge named metric, creating it on first use.
func (c *Collector) Gauge(metric, help string) prometheus.Gauge {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.gauges[metric]
	if !ok {
		g = register(c.reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      metric,
			Help:      help,
		}))
		c.gauges[metric] = g
	}
	return g
}

// register returns the already registered collector when an identical one
// exists, so two Collectors can share a registry.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func labelKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
