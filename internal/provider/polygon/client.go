package polygon

import (
	"context"
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
const VendorID = market.VendorID("polygon")

const defaultBaseURL = "https://api.polygon.io"

const (
	quoteTTL = 5 * time.Second
	barsTTL  = 5 * time.Minute
	newsTTL  = 10 * time.Minute
	chainTTL = 30 * time.Second

	pageLimit = 5000
	maxPages  = 20
)

// Client is the polygon.io vendor client. It supports the full contract:
// quotes, bars, news, and options chains.
type Client struct {
	http *provider.HTTPClient
}

// Config holds polygon connection settings.
type Config struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// New creates a polygon client sharing the given cache and limiter.
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

type snapshotResponse struct {
	Tickers []struct {
		Ticker string `json:"ticker"`
		Day    struct {
			Open   float64 `json:"o"`
			High   float64 `json:"h"`
			Low    float64 `json:"l"`
			Close  float64 `json:"c"`
			Volume float64 `json:"v"`
		} `json:"day"`
		LastTrade struct {
			Price     float64 `json:"p"`
			Timestamp int64   `json:"t"` // unix nanos
		} `json:"lastTrade"`
		PrevDay struct {
			Close float64 `json:"c"`
		} `json:"prevDay"`
		TodaysChange     float64 `json:"todaysChange"`
		TodaysChangePerc float64 `json:"todaysChangePerc"`
	} `json:"tickers"`
}

// GetQuotes fetches a snapshot for all symbols in one upstream call.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) ([]market.Quote, error) {
	key := "polygon:quotes:" + strings.Join(symbols, ",")
	tags := make([]string, 0, len(symbols))
	for _, s := range symbols {
		tags = append(tags, provider.SymbolTag(s))
	}

	return provider.Cached(ctx, c.http.Cache, key, quoteTTL, tags, func(ctx context.Context) ([]market.Quote, error) {
		params := url.Values{"tickers": {strings.Join(symbols, ",")}}
		var resp snapshotResponse
		if err := c.http.GetJSON(ctx, "/v2/snapshot/locale/us/markets/stocks/tickers", params, 1, &resp); err != nil {
			return nil, err
		}
		quotes := make([]market.Quote, 0, len(resp.Tickers))
		for _, t := range resp.Tickers {
			quotes = append(quotes, market.Quote{
				Symbol:        t.Ticker,
				Price:         t.LastTrade.Price,
				Timestamp:     t.LastTrade.Timestamp / int64(time.Second),
				Volume:        int64(t.Day.Volume),
				Change:        t.TodaysChange,
				ChangePercent: t.TodaysChangePerc,
				High:          t.Day.High,
				Low:           t.Day.Low,
				Open:          t.Day.Open,
				PreviousClose: t.PrevDay.Close,
			})
		}
		return quotes, nil
	})
}

// timespan maps a timeframe onto polygon's multiplier/timespan pair.
func timespan(tf market.Timeframe) (int, string) {
	switch tf {
	case market.TimeframeMinute:
		return 1, "minute"
	case market.Timeframe5Minute:
		return 5, "minute"
	case market.Timeframe15Minute:
		return 15, "minute"
	case market.Timeframe30Minute:
		return 30, "minute"
	case market.TimeframeHour:
		return 1, "hour"
	case market.Timeframe4Hour:
		return 4, "hour"
	case market.TimeframeWeek:
		return 1, "week"
	case market.TimeframeMonth:
		return 1, "month"
	default:
		return 1, "day"
	}
}

type aggsResponse struct {
	Results []struct {
		Timestamp int64   `json:"t"` // unix millis
		Open      float64 `json:"o"`
		High      float64 `json:"h"`
		Low       float64 `json:"l"`
		Close     float64 `json:"c"`
		Volume    float64 `json:"v"`
	} `json:"results"`
	NextURL string `json:"next_url"`
}

// GetHistoricalBars fetches aggregates, following pagination. The whole
// estimated token cost is reserved before the first page so a multi-page
// range cannot starve other instances mid-request.
func (c *Client) GetHistoricalBars(ctx context.Context, req market.BarsRequest) ([]market.Bar, error) {
	key := fmt.Sprintf("polygon:bars:%s:%s:%d:%d", req.Symbol, req.Timeframe, req.Start, req.End)
	tags := []string{provider.SymbolTag(req.Symbol), "bars"}

	return provider.Cached(ctx, c.http.Cache, key, barsTTL, tags, func(ctx context.Context) ([]market.Bar, error) {
		cost := ratelimit.EstimateCost(req, pageLimit)
		if c.http.Limiter != nil {
			if err := c.http.Limiter.Acquire(ctx, VendorID, cost); err != nil {
				return nil, err
			}
		}

		mult, span := timespan(req.Timeframe)
		path := fmt.Sprintf("/v2/aggs/ticker/%s/range/%d/%s/%d/%d",
			req.Symbol, mult, span, req.Start*1000, req.End*1000)
		params := url.Values{
			"adjusted": {"true"},
			"sort":     {"asc"},
			"limit":    {fmt.Sprint(pageLimit)},
		}

		var bars []market.Bar
		for page := 0; page < maxPages; page++ {
			var resp aggsResponse
			if err := c.http.GetJSON(ctx, path, params, 0, &resp); err != nil {
				return nil, err
			}
			for _, r := range resp.Results {
				bars = append(bars, market.Bar{
					Timestamp: r.Timestamp / 1000,
					Open:      r.Open,
					High:      r.High,
					Low:       r.Low,
					Close:     r.Close,
					Volume:    int64(r.Volume),
				})
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
		return bars, nil
	})
}

type newsResponse struct {
	Results []struct {
		ID          string   `json:"id"`
		Title       string   `json:"title"`
		Description string   `json:"description"`
		ArticleURL  string   `json:"article_url"`
		PublishedAt string   `json:"published_utc"`
		Tickers     []string `json:"tickers"`
		Publisher   struct {
			Name string `json:"name"`
		} `json:"publisher"`
	} `json:"results"`
}

// GetNews fetches recent articles, optionally scoped to one symbol.
func (c *Client) GetNews(ctx context.Context, req market.NewsRequest) ([]market.NewsItem, error) {
	key := fmt.Sprintf("polygon:news:%s:%d:%d:%d", req.Symbol, req.From, req.To, req.Limit)
	tags := []string{"news"}
	if req.Symbol != "" {
		tags = append(tags, provider.SymbolTag(req.Symbol))
	}

	return provider.Cached(ctx, c.http.Cache, key, newsTTL, tags, func(ctx context.Context) ([]market.NewsItem, error) {
		params := url.Values{"order": {"desc"}, "sort": {"published_utc"}}
		if req.Symbol != "" {
			params.Set("ticker", req.Symbol)
		}
		if req.From > 0 {
			params.Set("published_utc.gte", time.Unix(req.From, 0).UTC().Format(time.RFC3339))
		}
		if req.To > 0 {
			params.Set("published_utc.lte", time.Unix(req.To, 0).UTC().Format(time.RFC3339))
		}
		if req.Limit > 0 {
			params.Set("limit", fmt.Sprint(req.Limit))
		}

		var resp newsResponse
		if err := c.http.GetJSON(ctx, "/v2/reference/news", params, 1, &resp); err != nil {
			return nil, err
		}
		items := make([]market.NewsItem, 0, len(resp.Results))
		for _, r := range resp.Results {
			published, _ := time.Parse(time.RFC3339, r.PublishedAt)
			items = append(items, market.NewsItem{
				ID:          r.ID,
				Headline:    r.Title,
				Summary:     r.Description,
				Source:      r.Publisher.Name,
				URL:         r.ArticleURL,
				PublishedAt: published.Unix(),
				Symbols:     r.Tickers,
			})
		}
		return items, nil
	})
}

type marketStatusResponse struct {
	Market string `json:"market"`
}

// HealthCheck probes the market status endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	var resp marketStatusResponse
	if err := c.http.GetJSON(ctx, "/v1/marketstatus/now", nil, 1, &resp); err != nil {
		return err
	}
	if resp.Market == "" {
		return errors.New(errors.KindUnavailable, string(VendorID), "empty market status")
	}
	return nil
}
