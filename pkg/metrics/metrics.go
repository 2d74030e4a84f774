// Package metrics exposes repository activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/nebula/pkg/core"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "nebula"

// Collector holds all Prometheus metrics for a repository service.
// It implements core.Observer.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	CacheEvictions prometheus.Counter

	// Queue and validation metrics
	ClaimsLost  *prometheus.CounterVec
	Validations *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "kind", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "kind"},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of document cache hits",
			},
			[]string{"kind"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of document cache misses",
			},
			[]string{"kind"},
		),
		CacheEvictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_evictions_total",
				Help:      "Total number of documents evicted from the cache",
			},
		),
		ClaimsLost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_claims_lost_total",
				Help:      "Total number of queue claims lost to a concurrent receiver",
			},
			[]string{"queue"},
		),
		Validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "seal_validations_total",
				Help:      "Total number of seal chain validations",
			},
			[]string{"kind", "result"},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.CacheHits,
		c.CacheMisses,
		c.CacheEvictions,
		c.ClaimsLost,
		c.Validations,
	)
	return c
}

// Registry returns the Prometheus registry for this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveRequest records one served HTTP request.
func (c *Collector) ObserveRequest(method, kind string, status int, elapsed time.Duration) {
	c.HTTPRequests.WithLabelValues(method, kind, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, kind).Observe(elapsed.Seconds())
}

func (c *Collector) CacheHit(kind string)  { c.CacheHits.WithLabelValues(kind).Inc() }
func (c *Collector) CacheMiss(kind string) { c.CacheMisses.WithLabelValues(kind).Inc() }
func (c *Collector) CacheEvicted()         { c.CacheEvictions.Inc() }
func (c *Collector) ClaimLost(queue string) {
	c.ClaimsLost.WithLabelValues(queue).Inc()
}

func (c *Collector) SealsValidated(kind string, ok bool) {
	result := "valid"
	if !ok {
		result = "invalid"
	}
	c.Validations.WithLabelValues(kind, result).Inc()
}

var _ core.Observer = (*Collector)(nil)
