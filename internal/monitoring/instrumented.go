package monitoring

import "mdgate/internal/cache"

// InstrumentedCache wraps a cache so every lookup feeds the hit/miss
// counters. All other cache operations pass through unchanged.
type InstrumentedCache struct {
	cache.Cache
	metrics *Metrics
}

// InstrumentCache wraps c with prometheus hit/miss accounting.
func InstrumentCache(c cache.Cache, m *Metrics) *InstrumentedCache {
	return &InstrumentedCache{Cache: c, metrics: m}
}

func (ic *InstrumentedCache) Get(key string) (interface{}, bool) {
	value, ok := ic.Cache.Get(key)
	if ok {
		ic.metrics.CacheHits.Inc()
	} else {
		ic.metrics.CacheMisses.Inc()
	}
	return value, ok
}
