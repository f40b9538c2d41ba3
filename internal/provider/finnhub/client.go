package finnhub

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"mdgate/internal/cache"
	"mdgate/internal/errors"
	"mdgate/internal/logging"
	"mdgate/internal/market"
	"mdgate/internal/provider"
	"mdgate/internal/ratelimit"
)

// VendorID is how this client is registered with the router.
const VendorID = market.VendorID("finnhub")

const defaultBaseURL = "https://finnhub.io/api/v1"

const (
	quoteTTL = 5 * time.Second
	barsTTL  = 5 * time.Minute
	newsTTL  = 10 * time.Minute
)

// Client is the finnhub vendor client: quotes, candles, and company news.
// Finnhub has no options data, so the optional capabilities are absent.
type Client struct {
	http *provider.HTTPClient
}

// Config holds finnhub connection settings.
type Config struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// New creates a finnhub client sharing the given cache and limiter.
func New(cfg Config, c cache.Cache, limiter ratelimit.Limiter, log *logging.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	h := provider.NewHTTPClient(VendorID, base, cfg.APIKey, c, limiter, log)
	h.APIKeyParam = "token"
	return &Client{http: h}
}

func (c *Client) Name() market.VendorID { return VendorID }

type quoteResponse struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

// GetQuotes fetches one quote per symbol; finnhub has no batch endpoint.
// Each symbol is cached independently so a partially-warm batch only pays
// for the cold symbols.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) ([]market.Quote, error) {
	quotes := make([]market.Quote, 0, len(symbols))
	for _, symbol := range symbols {
		q, err := c.getQuote(ctx, symbol)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func (c *Client) getQuote(ctx context.Context, symbol string) (market.Quote, error) {
	key := "finnhub:quote:" + symbol
	tags := []string{provider.SymbolTag(symbol)}

	return provider.Cached(ctx, c.http.Cache, key, quoteTTL, tags, func(ctx context.Context) (market.Quote, error) {
		var resp quoteResponse
		if err := c.http.GetJSON(ctx, "/quote", url.Values{"symbol": {symbol}}, 1, &resp); err != nil {
			return market.Quote{}, err
		}
		// Finnhub answers 200 with a zeroed body for unknown symbols.
		if resp.Timestamp == 0 && resp.Current == 0 {
			return market.Quote{}, errors.Newf(errors.KindInvalidSymbol, string(VendorID), "no quote for %q", symbol)
		}
		return market.Quote{
			Symbol:        symbol,
			Price:         resp.Current,
			Timestamp:     resp.Timestamp,
			Change:        resp.Change,
			ChangePercent: resp.ChangePercent,
			High:          resp.High,
			Low:           resp.Low,
			Open:          resp.Open,
			PreviousClose: resp.PreviousClose,
		}, nil
	})
}

// resolution maps a timeframe onto finnhub's candle resolution codes.
func resolution(tf market.Timeframe) string {
	switch tf {
	case market.TimeframeMinute:
		return "1"
	case market.Timeframe5Minute:
		return "5"
	case market.Timeframe15Minute:
		return "15"
	case market.Timeframe30Minute:
		return "30"
	case market.TimeframeHour:
		return "60"
	case market.Timeframe4Hour:
		return "240"
	case market.TimeframeWeek:
		return "W"
	case market.TimeframeMonth:
		return "M"
	default:
		return "D"
	}
}

type candleResponse struct {
	Status     string    `json:"s"`
	Timestamps []int64   `json:"t"`
	Opens      []float64 `json:"o"`
	Highs      []float64 `json:"h"`
	Lows       []float64 `json:"l"`
	Closes     []float64 `json:"c"`
	Volumes    []float64 `json:"v"`
}

// GetHistoricalBars fetches candles for the requested range.
func (c *Client) GetHistoricalBars(ctx context.Context, req market.BarsRequest) ([]market.Bar, error) {
	key := fmt.Sprintf("finnhub:bars:%s:%s:%d:%d", req.Symbol, req.Timeframe, req.Start, req.End)
	tags := []string{provider.SymbolTag(req.Symbol), "bars"}

	return provider.Cached(ctx, c.http.Cache, key, barsTTL, tags, func(ctx context.Context) ([]market.Bar, error) {
		params := url.Values{
			"symbol":     {req.Symbol},
			"resolution": {resolution(req.Timeframe)},
			"from":       {fmt.Sprint(req.Start)},
			"to":         {fmt.Sprint(req.End)},
		}
		var resp candleResponse
		if err := c.http.GetJSON(ctx, "/stock/candle", params, 1, &resp); err != nil {
			return nil, err
		}
		if resp.Status == "no_data" {
			return []market.Bar{}, nil
		}
		if resp.Status != "ok" {
			return nil, errors.Newf(errors.KindInvalidSymbol, string(VendorID), "candle status %q for %s", resp.Status, req.Symbol)
		}

		bars := make([]market.Bar, 0, len(resp.Timestamps))
		for i := range resp.Timestamps {
			if i >= len(resp.Opens) || i >= len(resp.Highs) || i >= len(resp.Lows) || i >= len(resp.Closes) {
				break
			}
			bar := market.Bar{
				Timestamp: resp.Timestamps[i],
				Open:      resp.Opens[i],
				High:      resp.Highs[i],
				Low:       resp.Lows[i],
				Close:     resp.Closes[i],
			}
			if i < len(resp.Volumes) {
				bar.Volume = int64(resp.Volumes[i])
			}
			bars = append(bars, bar)
		}
		return bars, nil
	})
}

type newsArticle struct {
	ID       int64  `json:"id"`
	Datetime int64  `json:"datetime"`
	Headline string `json:"headline"`
	Related  string `json:"related"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

// GetNews fetches company news for one symbol, or general market news when
// no symbol is given.
func (c *Client) GetNews(ctx context.Context, req market.NewsRequest) ([]market.NewsItem, error) {
	key := fmt.Sprintf("finnhub:news:%s:%d:%d:%d", req.Symbol, req.From, req.To, req.Limit)
	tags := []string{"news"}
	if req.Symbol != "" {
		tags = append(tags, provider.SymbolTag(req.Symbol))
	}

	return provider.Cached(ctx, c.http.Cache, key, newsTTL, tags, func(ctx context.Context) ([]market.NewsItem, error) {
		var (
			path   string
			params = url.Values{}
		)
		if req.Symbol != "" {
			path = "/company-news"
			params.Set("symbol", req.Symbol)
			from := req.From
			if from == 0 {
				from = time.Now().AddDate(0, 0, -7).Unix()
			}
			to := req.To
			if to == 0 {
				to = time.Now().Unix()
			}
			params.Set("from", time.Unix(from, 0).UTC().Format("2006-01-02"))
			params.Set("to", time.Unix(to, 0).UTC().Format("2006-01-02"))
		} else {
			path = "/news"
			params.Set("category", "general")
		}

		var articles []newsArticle
		if err := c.http.GetJSON(ctx, path, params, 1, &articles); err != nil {
			return nil, err
		}

		items := make([]market.NewsItem, 0, len(articles))
		for _, a := range articles {
			if req.Limit > 0 && len(items) >= req.Limit {
				break
			}
			id := fmt.Sprint(a.ID)
			if a.ID == 0 {
				id = uuid.NewString()
			}
			item := market.NewsItem{
				ID:          id,
				Headline:    a.Headline,
				Summary:     a.Summary,
				Source:      a.Source,
				URL:         a.URL,
				PublishedAt: a.Datetime,
			}
			if a.Related != "" {
				item.Symbols = []string{a.Related}
			}
			items = append(items, item)
		}
		return items, nil
	})
}

// HealthCheck probes a cheap quote lookup.
func (c *Client) HealthCheck(ctx context.Context) error {
	var resp quoteResponse
	return c.http.GetJSON(ctx, "/quote", url.Values{"symbol": {"SPY"}}, 1, &resp)
}
