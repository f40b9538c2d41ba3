package router

import (
	"sync"
	"time"

	"mdgate/internal/market"
)

// VendorHealth is a snapshot of one vendor's circuit state.
type VendorHealth struct {
	Vendor              market.VendorID `json:"vendor"`
	Healthy             bool            `json:"healthy"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	LastCheckedAt       time.Time       `json:"last_checked_at"`
}

// vendorHealth is the live record. One mutex per vendor keeps the fields
// mutually consistent without serializing unrelated vendors; losing a race
// on the failure counter under concurrent failures only delays the circuit
// opening by one failure.
type vendorHealth struct {
	mu                  sync.Mutex
	healthy             bool
	consecutiveFailures int
	lastCheckedAt       time.Time
}

func newVendorHealth() *vendorHealth {
	return &vendorHealth{healthy: true}
}

// recordSuccess closes the circuit unconditionally.
func (h *vendorHealth) recordSuccess(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.healthy = true
	h.consecutiveFailures = 0
	h.lastCheckedAt = now
}

// recordFailure bumps the failure counter and opens the circuit once it
// reaches threshold. Returns true when the circuit just opened.
func (h *vendorHealth) recordFailure(now time.Time, threshold int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFailures++
	h.lastCheckedAt = now
	if h.healthy && h.consecutiveFailures >= threshold {
		h.healthy = false
		return true
	}
	return false
}

// snapshot reads the record atomically.
func (h *vendorHealth) snapshot(vendor market.VendorID) VendorHealth {
	h.mu.Lock()
	defer h.mu.Unlock()
	return VendorHealth{
		Vendor:              vendor,
		Healthy:             h.healthy,
		ConsecutiveFailures: h.consecutiveFailures,
		LastCheckedAt:       h.lastCheckedAt,
	}
}

// inCooldown reports whether the open circuit should still be skipped.
func (h *vendorHealth) inCooldown(now time.Time, cooldown time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.healthy && now.Sub(h.lastCheckedAt) < cooldown
}

func (h *vendorHealth) isHealthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.healthy
}
