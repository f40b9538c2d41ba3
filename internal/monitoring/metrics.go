package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the provider layer.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	FallbacksTotal  *prometheus.CounterVec
	VendorUnhealthy *prometheus.GaugeVec
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	LimiterWaitTime *prometheus.HistogramVec
	LimiterRejects  *prometheus.CounterVec
}

// New registers the provider-layer collectors on reg. Pass
// prometheus.DefaultRegisterer outside tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mdgate_provider_requests_total",
			Help: "Provider operations by vendor, operation, and result",
		}, []string{"vendor", "operation", "result"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mdgate_provider_request_duration_seconds",
			Help:    "Provider operation latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"vendor", "operation"}),
		FallbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mdgate_router_fallbacks_total",
			Help: "Fallback attempts by primary vendor and operation",
		}, []string{"vendor", "operation"}),
		VendorUnhealthy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mdgate_vendor_unhealthy",
			Help: "1 while the vendor's circuit is open",
		}, []string{"vendor"}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "mdgate_cache_hits_total",
			Help: "Cache lookups served without an upstream call",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "mdgate_cache_misses_total",
			Help: "Cache lookups that required an upstream call",
		}),
		LimiterWaitTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mdgate_limiter_wait_seconds",
			Help:    "Time spent waiting for rate limiter tokens",
			Buckets: []float64{.005, .05, .25, 1, 2.5, 5, 15, 30},
		}, []string{"vendor"}),
		LimiterRejects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mdgate_limiter_rejects_total",
			Help: "Token acquisitions that timed out or were rejected",
		}, []string{"vendor"}),
	}
}
