package router

import (
	"context"
	"sync"
	"time"

	"mdgate/internal/market"
	"mdgate/internal/provider"
)

// Start launches the background health loop: every HealthInterval each
// vendor's lightweight probe runs and feeds the same success/failure paths
// as request traffic. This is the only path that restores an open circuit
// without a user-triggered success. Stop with Close or by cancelling ctx.
func (r *Router) Start(ctx context.Context) {
	r.started.Store(true)
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.opts.HealthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.CheckAll(ctx)
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			}
		}
	}()
}

// Close stops the health loop and waits for it to exit. Safe to call when
// Start was never invoked.
func (r *Router) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
	if r.started.Load() {
		<-r.done
	}
}

// CheckAll probes every vendor concurrently, so one slow vendor cannot
// starve the others' checks within the interval, and waits for all probes.
func (r *Router) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for vendor, p := range r.providers {
		wg.Add(1)
		go func(vendor market.VendorID, p provider.Provider) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, r.opts.HealthTimeout)
			defer cancel()

			if err := p.HealthCheck(probeCtx); err != nil {
				r.recordFailure(vendor)
				r.log.WithField("vendor", vendor).WithError(err).Debug("health probe failed")
				return
			}
			r.recordSuccess(vendor)
		}(vendor, p)
	}
	wg.Wait()
}
