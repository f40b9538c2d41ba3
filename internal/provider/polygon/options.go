package polygon

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"mdgate/internal/market"
	"mdgate/internal/provider"
)

type optionsSnapshotResponse struct {
	Results []struct {
		Details struct {
			Ticker         string  `json:"ticker"`
			StrikePrice    float64 `json:"strike_price"`
			ExpirationDate string  `json:"expiration_date"` // YYYY-MM-DD
			ContractType   string  `json:"contract_type"`   // "call" | "put"
		} `json:"details"`
		LastQuote struct {
			Bid      float64 `json:"bid"`
			Ask      float64 `json:"ask"`
			Midpoint float64 `json:"midpoint"`
		} `json:"last_quote"`
		LastTrade struct {
			Price float64 `json:"price"`
		} `json:"last_trade"`
		Day struct {
			Volume float64 `json:"volume"`
		} `json:"day"`
		Greeks struct {
			Delta float64 `json:"delta"`
			Gamma float64 `json:"gamma"`
			Theta float64 `json:"theta"`
			Vega  float64 `json:"vega"`
		} `json:"greeks"`
		ImpliedVolatility float64 `json:"implied_volatility"`
		OpenInterest      float64 `json:"open_interest"`
	} `json:"results"`
	NextURL string `json:"next_url"`
}

// GetOptionsChain fetches the option snapshot for one underlying,
// optionally filtered to a single expiration.
func (c *Client) GetOptionsChain(ctx context.Context, req market.ChainRequest) (*market.OptionsChain, error) {
	key := fmt.Sprintf("polygon:chain:%s:%d", req.Underlying, req.Expiration)
	tags := []string{provider.SymbolTag(req.Underlying), "options"}

	return provider.Cached(ctx, c.http.Cache, key, chainTTL, tags, func(ctx context.Context) (*market.OptionsChain, error) {
		params := url.Values{"limit": {"250"}}
		if req.Expiration > 0 {
			params.Set("expiration_date", time.Unix(req.Expiration, 0).UTC().Format("2006-01-02"))
		}

		chain := &market.OptionsChain{
			Underlying: req.Underlying,
			Timestamp:  time.Now().UnixMilli(),
			Providers:  &market.ChainProviders{Price: VendorID},
		}
		expirations := make(map[int64]struct{})

		path := "/v3/snapshot/options/" + req.Underlying
		for page := 0; page < maxPages; page++ {
			var resp optionsSnapshotResponse
			if err := c.http.GetJSON(ctx, path, params, 1, &resp); err != nil {
				return nil, err
			}
			for _, r := range resp.Results {
				expiry, err := time.Parse("2006-01-02", r.Details.ExpirationDate)
				if err != nil {
					continue
				}
				contract := market.OptionContract{
					Symbol:            r.Details.Ticker,
					Underlying:        req.Underlying,
					Strike:            r.Details.StrikePrice,
					Expiration:        expiry.Unix(),
					Bid:               r.LastQuote.Bid,
					Ask:               r.LastQuote.Ask,
					Last:              r.LastTrade.Price,
					Mark:              r.LastQuote.Midpoint,
					Volume:            int64(r.Day.Volume),
					OpenInterest:      int64(r.OpenInterest),
					Delta:             r.Greeks.Delta,
					Gamma:             r.Greeks.Gamma,
					Theta:             r.Greeks.Theta,
					Vega:              r.Greeks.Vega,
					ImpliedVolatility: r.ImpliedVolatility,
					PriceProvider:     VendorID,
					OIProvider:        VendorID,
				}
				expirations[contract.Expiration] = struct{}{}
				switch r.Details.ContractType {
				case "put":
					contract.Type = market.Put
					chain.Puts = append(chain.Puts, contract)
				default:
					contract.Type = market.Call
					chain.Calls = append(chain.Calls, contract)
				}
			}
			if resp.NextURL == "" {
				break
			}
			next, err := url.Parse(resp.NextURL)
			if err != nil {
				break
			}
			path = next.Path
			params = next.Query()
		}

		chain.Expirations = make([]int64, 0, len(expirations))
		for e := range expirations {
			chain.Expirations = append(chain.Expirations, e)
		}
		sort.Slice(chain.Expirations, func(i, j int) bool {
			return chain.Expirations[i] < chain.Expirations[j]
		})
		return chain, nil
	})
}
