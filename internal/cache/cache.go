package cache

import "time"

// Cache is the contract provider clients use to avoid redundant upstream
// calls. Keys are opaque strings; tags allow one upstream event to
// invalidate every cached artifact derived from it.
type Cache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration, tags ...string)
	Delete(key string) bool
	InvalidateTag(tag string) int
	Clear()
	Len() int
	Stats() Stats
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Entries   int   `json:"entries"`
	MaxSize   int   `json:"max_size"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Expired   int64 `json:"expired"`
}

// HitRate returns the fraction of lookups served from cache.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
