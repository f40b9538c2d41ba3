package router

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"mdgate/internal/errors"
	"mdgate/internal/logging"
	"mdgate/internal/market"
	"mdgate/internal/monitoring"
	"mdgate/internal/provider"
)

// Operation names the router's entry points, used in policies and metrics.
type Operation string

const (
	OpQuotes  Operation = "quotes"
	OpBars    Operation = "bars"
	OpNews    Operation = "news"
	OpOptions Operation = "options"
	OpSearch  Operation = "search"
)

// Policy designates the primary vendor for one operation and an optional
// fallback. An empty Fallback means the operation never fails over.
type Policy struct {
	Primary  market.VendorID `yaml:"primary"`
	Fallback market.VendorID `yaml:"fallback"`
}

// Policies is the per-operation vendor routing table, fixed at startup.
// Bars deliberately has no fallback slot: one vendor is authoritative for
// time-series continuity, since mixing vendors mid-series produces visible
// seams in OHLC data.
type Policies struct {
	Quotes  Policy          `yaml:"quotes"`
	Bars    market.VendorID `yaml:"bars"`
	News    Policy          `yaml:"news"`
	Options Policy          `yaml:"options"`
	Search  Policy          `yaml:"search"`
	// Liquidity names the secondary vendor whose open-interest/volume
	// fields overlay options chains. Empty disables enrichment.
	Liquidity market.VendorID `yaml:"liquidity"`
}

// Options tunes the circuit breaker and health loop.
type Options struct {
	FailureThreshold int
	Cooldown         time.Duration
	HealthInterval   time.Duration
	HealthTimeout    time.Duration
}

// DefaultOptions returns the standard breaker tuning: three strikes, a flat
// five-minute cooldown, and a health probe every minute.
func DefaultOptions() Options {
	return Options{
		FailureThreshold: 3,
		Cooldown:         5 * time.Minute,
		HealthInterval:   60 * time.Second,
		HealthTimeout:    10 * time.Second,
	}
}

// Router fronts every configured vendor behind one uniform contract. It
// owns the per-vendor health records, applies the per-operation policy,
// fails over at most once per call, and runs the background health loop.
type Router struct {
	providers map[market.VendorID]provider.Provider
	health    map[market.VendorID]*vendorHealth
	policies  Policies
	opts      Options
	log       *logging.Logger
	metrics   *monitoring.Metrics

	// now is swapped in tests to steer cooldown windows.
	now func() time.Time

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New constructs a Router over the given providers. Health records are
// created for every provider up front and live for the process lifetime.
func New(providers map[market.VendorID]provider.Provider, policies Policies, opts Options, log *logging.Logger, metrics *monitoring.Metrics) *Router {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultOptions().FailureThreshold
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultOptions().Cooldown
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = DefaultOptions().HealthInterval
	}
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = DefaultOptions().HealthTimeout
	}
	if log == nil {
		log = logging.NewNop()
	}

	health := make(map[market.VendorID]*vendorHealth, len(providers))
	for vendor := range providers {
		health[vendor] = newVendorHealth()
	}
	return &Router{
		providers: providers,
		health:    health,
		policies:  policies,
		opts:      opts,
		log:       log.WithField("component", "router"),
		metrics:   metrics,
		now:       time.Now,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// GetQuotes fetches quotes for symbols via the quotes policy.
func (r *Router) GetQuotes(ctx context.Context, symbols []string) ([]market.Quote, error) {
	if len(symbols) == 0 {
		return nil, errors.New(errors.KindValidation, "", "no symbols requested")
	}
	return call(r, ctx, OpQuotes, r.policies.Quotes, func(ctx context.Context, p provider.Provider) ([]market.Quote, error) {
		return p.GetQuotes(ctx, symbols)
	})
}

// GetHistoricalBars fetches OHLCV bars from the single designated bars
// vendor. There is no fallback: if the vendor is absent the call fails
// fast with a configuration error and zero vendor calls.
func (r *Router) GetHistoricalBars(ctx context.Context, req market.BarsRequest) ([]market.Bar, error) {
	if !req.Timeframe.Valid() {
		return nil, errors.Newf(errors.KindValidation, "", "invalid timeframe %q", req.Timeframe)
	}
	vendor := r.policies.Bars
	if vendor == "" {
		return nil, errors.Config("no historical bars vendor configured")
	}
	p, ok := r.providers[vendor]
	if !ok {
		return nil, errors.Config("historical bars vendor %q is not registered", vendor)
	}

	start := r.now()
	bars, err := p.GetHistoricalBars(ctx, req)
	r.observe(vendor, OpBars, start, err)
	if err != nil {
		r.recordFailure(vendor)
		return nil, errors.AsProviderError(err, string(vendor))
	}
	r.recordSuccess(vendor)
	return bars, nil
}

// GetNews fetches news via the news policy.
func (r *Router) GetNews(ctx context.Context, req market.NewsRequest) ([]market.NewsItem, error) {
	return call(r, ctx, OpNews, r.policies.News, func(ctx context.Context, p provider.Provider) ([]market.NewsItem, error) {
		return p.GetNews(ctx, req)
	})
}

// GetOptionsChain fetches a chain via the options policy, then overlays
// liquidity fields from the secondary source when one is configured.
func (r *Router) GetOptionsChain(ctx context.Context, req market.ChainRequest) (*market.OptionsChain, error) {
	if req.Underlying == "" {
		return nil, errors.New(errors.KindValidation, "", "underlying is required")
	}
	var served market.VendorID
	chain, err := call(r, ctx, OpOptions, r.policies.Options, func(ctx context.Context, p provider.Provider) (*market.OptionsChain, error) {
		cp, ok := p.(provider.ChainProvider)
		if !ok {
			return nil, errors.Config("vendor %q does not support options chains", p.Name())
		}
		served = p.Name()
		return cp.GetOptionsChain(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return r.enrichChain(ctx, chain, served), nil
}

// SearchSymbols looks up symbols via the search policy.
func (r *Router) SearchSymbols(ctx context.Context, query string) ([]market.Symbol, error) {
	if query == "" {
		return nil, errors.New(errors.KindValidation, "", "query is required")
	}
	return call(r, ctx, OpSearch, r.policies.Search, func(ctx context.Context, p provider.Provider) ([]market.Symbol, error) {
		ss, ok := p.(provider.SymbolSearcher)
		if !ok {
			return nil, errors.Config("vendor %q does not support symbol search", p.Name())
		}
		return ss.SearchSymbols(ctx, query)
	})
}

// Health returns a snapshot of every vendor's circuit state.
func (r *Router) Health() map[market.VendorID]VendorHealth {
	out := make(map[market.VendorID]VendorHealth, len(r.health))
	for vendor, h := range r.health {
		out[vendor] = h.snapshot(vendor)
	}
	return out
}

// call runs one operation under the selection and fallback policy.
func call[T any](r *Router, ctx context.Context, op Operation, policy Policy, fn func(context.Context, provider.Provider) (T, error)) (T, error) {
	var zero T
	if policy.Primary == "" {
		return zero, errors.Config("no vendor configured for %s", op)
	}

	selected := r.selectVendor(policy.Primary, policy.Fallback)
	p, ok := r.providers[selected]
	if !ok {
		return zero, errors.Config("vendor %q is not registered", selected)
	}

	start := r.now()
	result, err := fn(ctx, p)
	r.observe(selected, op, start, err)
	if err == nil {
		r.recordSuccess(selected)
		return result, nil
	}
	r.recordFailure(selected)
	primaryErr := errors.AsProviderError(err, string(selected))

	// One fallback attempt, unless the failure class rules it out or the
	// selection already landed on the fallback.
	fallback := policy.Fallback
	if !primaryErr.Fallbackable() || fallback == "" || fallback == selected {
		return zero, primaryErr
	}
	fp, ok := r.providers[fallback]
	if !ok {
		return zero, primaryErr
	}

	if r.metrics != nil {
		r.metrics.FallbacksTotal.WithLabelValues(string(selected), string(op)).Inc()
	}
	r.log.WithFields(map[string]interface{}{
		"operation": op,
		"primary":   selected,
		"fallback":  fallback,
	}).WithError(primaryErr).Warn("retrying against fallback vendor")

	start = r.now()
	result, err = fn(ctx, fp)
	r.observe(fallback, op, start, err)
	if err == nil {
		r.recordSuccess(fallback)
		return result, nil
	}
	r.recordFailure(fallback)

	// Both vendors failed; the primary's error is the one that matters.
	return zero, primaryErr
}

// selectVendor applies the circuit breaker: skip an unhealthy primary for
// the flat cooldown window when a healthy fallback exists, then lazily
// retry the primary on the first call after the window elapses.
func (r *Router) selectVendor(primary, fallback market.VendorID) market.VendorID {
	h, ok := r.health[primary]
	if !ok {
		return primary
	}
	if !h.inCooldown(r.now(), r.opts.Cooldown) {
		return primary
	}
	if fallback == "" {
		return primary
	}
	fh, ok := r.health[fallback]
	if !ok || !fh.isHealthy() {
		return primary
	}
	return fallback
}

func (r *Router) recordSuccess(vendor market.VendorID) {
	h, ok := r.health[vendor]
	if !ok {
		return
	}
	h.recordSuccess(r.now())
	if r.metrics != nil {
		r.metrics.VendorUnhealthy.WithLabelValues(string(vendor)).Set(0)
	}
}

func (r *Router) recordFailure(vendor market.VendorID) {
	h, ok := r.health[vendor]
	if !ok {
		return
	}
	if tripped := h.recordFailure(r.now(), r.opts.FailureThreshold); tripped {
		r.log.WithField("vendor", vendor).Warn("vendor circuit opened")
		if r.metrics != nil {
			r.metrics.VendorUnhealthy.WithLabelValues(string(vendor)).Set(1)
		}
	}
}

func (r *Router) observe(vendor market.VendorID, op Operation, start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	result := "success"
	if err != nil {
		result = string(errors.GetKind(err))
	}
	r.metrics.RequestsTotal.WithLabelValues(string(vendor), string(op), result).Inc()
	r.metrics.RequestDuration.WithLabelValues(string(vendor), string(op)).Observe(r.now().Sub(start).Seconds())
}
