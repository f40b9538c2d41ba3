package tradier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"mdgate/internal/cache"
	"mdgate/internal/errors"
	"mdgate/internal/logging"
	"mdgate/internal/market"
	"mdgate/internal/provider"
	"mdgate/internal/ratelimit"
)

// VendorID is how this client is registered with the router.
const VendorID = market.VendorID("tradier")

const defaultBaseURL = "https://api.tradier.com/v1"

const (
	quoteTTL  = 5 * time.Second
	barsTTL   = 5 * time.Minute
	chainTTL  = 30 * time.Second
	searchTTL = time.Hour

	// liquidity snapshots tolerate more staleness than prices do
	liquidityTTL = 5 * time.Minute

	// how many near-dated expirations the liquidity overlay walks
	liquidityExpirations = 4
)

// Client is the tradier vendor client. Besides the required operations it
// provides options chains, symbol search, and the open-interest overlay
// used to enrich other vendors' chains.
type Client struct {
	http *provider.HTTPClient
}

// Config holds tradier connection settings.
type Config struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// New creates a tradier client sharing the given cache and limiter.
func New(cfg Config, c cache.Cache, limiter ratelimit.Limiter, log *logging.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		http: provider.NewHTTPClient(VendorID, base, cfg.APIKey, c, limiter, log),
	}
}

func (c *Client) Name() market.VendorID { return VendorID }

// oneOrMany unmarshals tradier's habit of returning a bare object for a
// single result and an array for several.
type oneOrMany[T any] []T

func (o *oneOrMany[T]) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*o = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var many []T
		if err := json.Unmarshal(data, &many); err != nil {
			return err
		}
		*o = many
		return nil
	}
	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*o = []T{one}
	return nil
}

type tradierQuote struct {
	Symbol           string  `json:"symbol"`
	Last             float64 `json:"last"`
	Change           float64 `json:"change"`
	ChangePercentage float64 `json:"change_percentage"`
	Volume           int64   `json:"volume"`
	High             float64 `json:"high"`
	Low              float64 `json:"low"`
	Open             float64 `json:"open"`
	PrevClose        float64 `json:"prevclose"`
	TradeDate        int64   `json:"trade_date"` // unix millis
}

type quotesResponse struct {
	Quotes struct {
		Quote oneOrMany[tradierQuote] `json:"quote"`
	} `json:"quotes"`
}

// GetQuotes fetches quotes for all symbols in one upstream call.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) ([]market.Quote, error) {
	key := "tradier:quotes:" + strings.Join(symbols, ",")
	tags := make([]string, 0, len(symbols))
	for _, s := range symbols {
		tags = append(tags, provider.SymbolTag(s))
	}

	return provider.Cached(ctx, c.http.Cache, key, quoteTTL, tags, func(ctx context.Context) ([]market.Quote, error) {
		params := url.Values{"symbols": {strings.Join(symbols, ",")}}
		var resp quotesResponse
		if err := c.http.GetJSON(ctx, "/markets/quotes", params, 1, &resp); err != nil {
			return nil, err
		}
		quotes := make([]market.Quote, 0, len(resp.Quotes.Quote))
		for _, q := range resp.Quotes.Quote {
			quotes = append(quotes, market.Quote{
				Symbol:        q.Symbol,
				Price:         q.Last,
				Timestamp:     q.TradeDate / 1000,
				Volume:        q.Volume,
				Change:        q.Change,
				ChangePercent: q.ChangePercentage,
				High:          q.High,
				Low:           q.Low,
				Open:          q.Open,
				PreviousClose: q.PrevClose,
			})
		}
		return quotes, nil
	})
}

type historyResponse struct {
	History struct {
		Day oneOrMany[struct {
			Date   string  `json:"date"`
			Open   float64 `json:"open"`
			High   float64 `json:"high"`
			Low    float64 `json:"low"`
			Close  float64 `json:"close"`
			Volume int64   `json:"volume"`
		}] `json:"day"`
	} `json:"history"`
}

// interval maps a timeframe onto tradier's history interval. Intraday
// timeframes are not available through the history endpoint.
func interval(tf market.Timeframe) (string, bool) {
	switch tf {
	case market.TimeframeDay:
		return "daily", true
	case market.TimeframeWeek:
		return "weekly", true
	case market.TimeframeMonth:
		return "monthly", true
	default:
		return "", false
	}
}

// GetHistoricalBars fetches daily and coarser bars. Tradier's history API
// has no intraday resolution, so finer timeframes are a validation error.
func (c *Client) GetHistoricalBars(ctx context.Context, req market.BarsRequest) ([]market.Bar, error) {
	iv, ok := interval(req.Timeframe)
	if !ok {
		return nil, errors.Newf(errors.KindValidation, string(VendorID), "timeframe %s not supported", req.Timeframe)
	}
	key := fmt.Sprintf("tradier:bars:%s:%s:%d:%d", req.Symbol, req.Timeframe, req.Start, req.End)
	tags := []string{provider.SymbolTag(req.Symbol), "bars"}

	return provider.Cached(ctx, c.http.Cache, key, barsTTL, tags, func(ctx context.Context) ([]market.Bar, error) {
		params := url.Values{
			"symbol":   {req.Symbol},
			"interval": {iv},
			"start":    {time.Unix(req.Start, 0).UTC().Format("2006-01-02")},
			"end":      {time.Unix(req.End, 0).UTC().Format("2006-01-02")},
		}
		var resp historyResponse
		if err := c.http.GetJSON(ctx, "/markets/history", params, 1, &resp); err != nil {
			return nil, err
		}
		bars := make([]market.Bar, 0, len(resp.History.Day))
		for _, d := range resp.History.Day {
			day, err := time.Parse("2006-01-02", d.Date)
			if err != nil {
				continue
			}
			bars = append(bars, market.Bar{
				Timestamp: day.Unix(),
				Open:      d.Open,
				High:      d.High,
				Low:       d.Low,
				Close:     d.Close,
				Volume:    d.Volume,
			})
		}
		return bars, nil
	})
}

// GetNews is not available on tradier's market data API.
func (c *Client) GetNews(ctx context.Context, req market.NewsRequest) ([]market.NewsItem, error) {
	return nil, errors.Config("vendor %q does not provide news", VendorID)
}

type searchResponse struct {
	Securities struct {
		Security oneOrMany[struct {
			Symbol      string `json:"symbol"`
			Exchange    string `json:"exchange"`
			Type        string `json:"type"`
			Description string `json:"description"`
		}] `json:"security"`
	} `json:"securities"`
}

// SearchSymbols looks up securities matching query.
func (c *Client) SearchSymbols(ctx context.Context, query string) ([]market.Symbol, error) {
	key := "tradier:search:" + strings.ToLower(query)

	return provider.Cached(ctx, c.http.Cache, key, searchTTL, []string{"search"}, func(ctx context.Context) ([]market.Symbol, error) {
		params := url.Values{"q": {query}}
		var resp searchResponse
		if err := c.http.GetJSON(ctx, "/markets/lookup", params, 1, &resp); err != nil {
			return nil, err
		}
		symbols := make([]market.Symbol, 0, len(resp.Securities.Security))
		for _, s := range resp.Securities.Security {
			symbols = append(symbols, market.Symbol{
				Symbol:      s.Symbol,
				Name:        s.Description,
				Exchange:    s.Exchange,
				AssetType:   s.Type,
				Description: s.Description,
			})
		}
		return symbols, nil
	})
}

type clockResponse struct {
	Clock struct {
		State string `json:"state"`
	} `json:"clock"`
}

// HealthCheck probes the market clock endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	var resp clockResponse
	if err := c.http.GetJSON(ctx, "/markets/clock", nil, 1, &resp); err != nil {
		return err
	}
	if resp.Clock.State == "" {
		return errors.New(errors.KindUnavailable, string(VendorID), "empty market clock")
	}
	return nil
}
