package tradier

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"mdgate/internal/market"
	"mdgate/internal/provider"
)

type tradierOption struct {
	Symbol         string  `json:"symbol"`
	Underlying     string  `json:"underlying"`
	Strike         float64 `json:"strike"`
	ExpirationDate string  `json:"expiration_date"` // YYYY-MM-DD
	OptionType     string  `json:"option_type"`     // "call" | "put"
	Bid            float64 `json:"bid"`
	Ask            float64 `json:"ask"`
	Last           float64 `json:"last"`
	Volume         int64   `json:"volume"`
	OpenInterest   int64   `json:"open_interest"`
	Greeks         *struct {
		Delta float64 `json:"delta"`
		Gamma float64 `json:"gamma"`
		Theta float64 `json:"theta"`
		Vega  float64 `json:"vega"`
		MidIV float64 `json:"mid_iv"`
	} `json:"greeks"`
}

type chainsResponse struct {
	Options struct {
		Option oneOrMany[tradierOption] `json:"option"`
	} `json:"options"`
}

type expirationsResponse struct {
	Expirations struct {
		Date oneOrMany[string] `json:"date"`
	} `json:"expirations"`
}

// expirations lists the available expiration dates for an underlying.
func (c *Client) expirations(ctx context.Context, underlying string) ([]int64, error) {
	key := "tradier:expirations:" + underlying
	tags := []string{provider.SymbolTag(underlying), "options"}

	return provider.Cached(ctx, c.http.Cache, key, chainTTL, tags, func(ctx context.Context) ([]int64, error) {
		params := url.Values{"symbol": {underlying}}
		var resp expirationsResponse
		if err := c.http.GetJSON(ctx, "/markets/options/expirations", params, 1, &resp); err != nil {
			return nil, err
		}
		out := make([]int64, 0, len(resp.Expirations.Date))
		for _, d := range resp.Expirations.Date {
			t, err := time.Parse("2006-01-02", d)
			if err != nil {
				continue
			}
			out = append(out, t.Unix())
		}
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		return out, nil
	})
}

// chainForExpiration fetches the raw chain for one expiration date.
func (c *Client) chainForExpiration(ctx context.Context, underlying string, expiration int64) ([]tradierOption, error) {
	params := url.Values{
		"symbol":     {underlying},
		"expiration": {time.Unix(expiration, 0).UTC().Format("2006-01-02")},
		"greeks":     {"true"},
	}
	var resp chainsResponse
	if err := c.http.GetJSON(ctx, "/markets/options/chains", params, 1, &resp); err != nil {
		return nil, err
	}
	return resp.Options.Option, nil
}

// GetOptionsChain fetches the chain for the requested expiration, or the
// nearest one when the request leaves it open.
func (c *Client) GetOptionsChain(ctx context.Context, req market.ChainRequest) (*market.OptionsChain, error) {
	key := fmt.Sprintf("tradier:chain:%s:%d", req.Underlying, req.Expiration)
	tags := []string{provider.SymbolTag(req.Underlying), "options"}

	return provider.Cached(ctx, c.http.Cache, key, chainTTL, tags, func(ctx context.Context) (*market.OptionsChain, error) {
		expirations, err := c.expirations(ctx, req.Underlying)
		if err != nil {
			return nil, err
		}

		target := req.Expiration
		if target == 0 && len(expirations) > 0 {
			target = expirations[0]
		}

		chain := &market.OptionsChain{
			Underlying:  req.Underlying,
			Timestamp:   time.Now().UnixMilli(),
			Expirations: expirations,
			Providers:   &market.ChainProviders{Price: VendorID},
		}
		if target == 0 {
			return chain, nil
		}

		options, err := c.chainForExpiration(ctx, req.Underlying, target)
		if err != nil {
			return nil, err
		}
		for _, o := range options {
			expiry, err := time.Parse("2006-01-02", o.ExpirationDate)
			if err != nil {
				continue
			}
			contract := market.OptionContract{
				Symbol:        o.Symbol,
				Underlying:    req.Underlying,
				Strike:        o.Strike,
				Expiration:    expiry.Unix(),
				Bid:           o.Bid,
				Ask:           o.Ask,
				Last:          o.Last,
				Mark:          (o.Bid + o.Ask) / 2,
				Volume:        o.Volume,
				OpenInterest:  o.OpenInterest,
				PriceProvider: VendorID,
				OIProvider:    VendorID,
			}
			if o.Greeks != nil {
				contract.Delta = o.Greeks.Delta
				contract.Gamma = o.Greeks.Gamma
				contract.Theta = o.Greeks.Theta
				contract.Vega = o.Greeks.Vega
				contract.ImpliedVolatility = o.Greeks.MidIV
			}
			if o.OptionType == "put" {
				contract.Type = market.Put
				chain.Puts = append(chain.Puts, contract)
			} else {
				contract.Type = market.Call
				chain.Calls = append(chain.Calls, contract)
			}
		}
		return chain, nil
	})
}

// GetLiquidity builds the contract-symbol keyed open-interest/volume map
// used to enrich another vendor's chain, walking the near-dated
// expirations.
func (c *Client) GetLiquidity(ctx context.Context, underlying string) (map[string]market.Liquidity, error) {
	key := "tradier:liquidity:" + underlying
	tags := []string{provider.SymbolTag(underlying), "options"}

	return provider.Cached(ctx, c.http.Cache, key, liquidityTTL, tags, func(ctx context.Context) (map[string]market.Liquidity, error) {
		expirations, err := c.expirations(ctx, underlying)
		if err != nil {
			return nil, err
		}
		if len(expirations) > liquidityExpirations {
			expirations = expirations[:liquidityExpirations]
		}

		liquidity := make(map[string]market.Liquidity)
		for _, expiration := range expirations {
			options, err := c.chainForExpiration(ctx, underlying, expiration)
			if err != nil {
				return nil, err
			}
			for _, o := range options {
				liquidity[o.Symbol] = market.Liquidity{
					OpenInterest: o.OpenInterest,
					Volume:       o.Volume,
				}
			}
		}
		return liquidity, nil
	})
}
