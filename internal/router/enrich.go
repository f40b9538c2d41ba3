package router

import (
	"context"

	"mdgate/internal/market"
	"mdgate/internal/provider"
)

// enrichChain overlays open-interest and volume from the configured
// liquidity vendor onto chain, matched by contract symbol. Pricing and
// Greeks fields from the serving vendor are never touched. When the
// secondary source is unconfigured or fails, the chain is returned
// unenriched with provenance defaulting to served — the vendor that
// actually produced the chain, which after a failover is the fallback,
// not the policy's primary.
func (r *Router) enrichChain(ctx context.Context, chain *market.OptionsChain, served market.VendorID) *market.OptionsChain {
	if chain == nil {
		return nil
	}
	if served == "" {
		served = r.policies.Options.Primary
	}
	if chain.Providers == nil {
		chain.Providers = &market.ChainProviders{Price: served}
	}
	defaultProvenance(chain.Calls, served)
	defaultProvenance(chain.Puts, served)

	secondary := r.policies.Liquidity
	if secondary == "" || secondary == served {
		return chain
	}
	p, ok := r.providers[secondary]
	if !ok {
		return chain
	}
	lp, ok := p.(provider.LiquidityProvider)
	if !ok {
		return chain
	}

	liquidity, err := lp.GetLiquidity(ctx, chain.Underlying)
	if err != nil {
		r.recordFailure(secondary)
		r.log.WithFields(map[string]interface{}{
			"vendor":     secondary,
			"underlying": chain.Underlying,
		}).WithError(err).Warn("liquidity enrichment failed, returning unenriched chain")
		return chain
	}
	r.recordSuccess(secondary)

	matched := overlay(chain.Calls, liquidity, secondary)
	matched += overlay(chain.Puts, liquidity, secondary)
	if matched > 0 {
		chain.Providers.Liquidity = secondary
	}
	return chain
}

func defaultProvenance(contracts []market.OptionContract, vendor market.VendorID) {
	for i := range contracts {
		if contracts[i].PriceProvider == "" {
			contracts[i].PriceProvider = vendor
		}
		if contracts[i].OIProvider == "" {
			contracts[i].OIProvider = vendor
		}
	}
}

func overlay(contracts []market.OptionContract, liquidity map[string]market.Liquidity, vendor market.VendorID) int {
	matched := 0
	for i := range contracts {
		l, ok := liquidity[contracts[i].Symbol]
		if !ok {
			continue
		}
		contracts[i].OpenInterest = l.OpenInterest
		contracts[i].Volume = l.Volume
		contracts[i].OIProvider = vendor
		matched++
	}
	return matched
}
