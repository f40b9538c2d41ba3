package market

import "time"

// VendorID identifies an upstream market data vendor. The set is open:
// vendors are registered at startup, not enumerated here.
type VendorID string

// Quote represents a normalized real-time quote
type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Timestamp     int64   `json:"timestamp"` // unix seconds
	Volume        int64   `json:"volume,omitempty"`
	Change        float64 `json:"change,omitempty"`
	ChangePercent float64 `json:"change_percent,omitempty"`
	High          float64 `json:"high,omitempty"`
	Low           float64 `json:"low,omitempty"`
	Open          float64 `json:"open,omitempty"`
	PreviousClose float64 `json:"previous_close,omitempty"`
}

// Bar represents one OHLCV candle
type Bar struct {
	Timestamp int64   `json:"timestamp"` // unix seconds, bar open time
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
}

// NewsItem represents a normalized news article
type NewsItem struct {
	ID          string   `json:"id"`
	Headline    string   `json:"headline"`
	Summary     string   `json:"summary,omitempty"`
	Source      string   `json:"source"`
	URL         string   `json:"url"`
	PublishedAt int64    `json:"published_at"` // unix seconds
	Symbols     []string `json:"symbols,omitempty"`
	Sentiment   float64  `json:"sentiment,omitempty"`
}

// OptionType is the side of an option contract.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// OptionContract represents a single option contract. PriceProvider and
// OIProvider record which vendor supplied the pricing fields and which
// supplied the open-interest/volume fields, since a chain may be enriched
// from a secondary liquidity source.
type OptionContract struct {
	Symbol            string     `json:"symbol"`
	Underlying        string     `json:"underlying"`
	Strike            float64    `json:"strike"`
	Expiration        int64      `json:"expiration"` // unix seconds
	Type              OptionType `json:"type"`
	Bid               float64    `json:"bid"`
	Ask               float64    `json:"ask"`
	Last              float64    `json:"last"`
	Mark              float64    `json:"mark"`
	Volume            int64      `json:"volume"`
	OpenInterest      int64      `json:"open_interest"`
	Delta             float64    `json:"delta,omitempty"`
	Gamma             float64    `json:"gamma,omitempty"`
	Theta             float64    `json:"theta,omitempty"`
	Vega              float64    `json:"vega,omitempty"`
	ImpliedVolatility float64    `json:"implied_volatility,omitempty"`
	PriceProvider     VendorID   `json:"price_provider,omitempty"`
	OIProvider        VendorID   `json:"oi_provider,omitempty"`
}

// ChainProviders records chain-level provenance.
type ChainProviders struct {
	Price     VendorID `json:"price"`
	Liquidity VendorID `json:"liquidity,omitempty"`
}

// OptionsChain represents a full chain for one underlying
type OptionsChain struct {
	Underlying  string           `json:"underlying"`
	Timestamp   int64            `json:"timestamp"` // unix millis
	Expirations []int64          `json:"expirations"`
	Calls       []OptionContract `json:"calls"`
	Puts        []OptionContract `json:"puts"`
	Providers   *ChainProviders  `json:"providers,omitempty"`
}

// Liquidity carries the open-interest/volume overlay for one contract,
// keyed by contract symbol during enrichment.
type Liquidity struct {
	OpenInterest int64 `json:"open_interest"`
	Volume       int64 `json:"volume"`
}

// Symbol represents a symbol search result
type Symbol struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Exchange    string `json:"exchange,omitempty"`
	AssetType   string `json:"asset_type,omitempty"`
	Currency    string `json:"currency,omitempty"`
	Description string `json:"description,omitempty"`
}

// BarsRequest describes a historical bars query.
type BarsRequest struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	Start     int64     `json:"start"` // unix seconds, inclusive
	End       int64     `json:"end"`   // unix seconds, inclusive
}

// NewsRequest describes a news query. All fields are optional.
type NewsRequest struct {
	Symbol string `json:"symbol,omitempty"`
	From   int64  `json:"from,omitempty"` // unix seconds
	To     int64  `json:"to,omitempty"`   // unix seconds
	Limit  int    `json:"limit,omitempty"`
}

// ChainRequest describes an options chain query. A zero Expiration means
// all expirations the vendor returns.
type ChainRequest struct {
	Underlying string `json:"underlying"`
	Expiration int64  `json:"expiration,omitempty"` // unix seconds
}

// Now returns the current time as unix seconds.
func Now() int64 {
	return time.Now().Unix()
}
