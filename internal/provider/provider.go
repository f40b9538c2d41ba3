package provider

import (
	"context"

	"mdgate/internal/market"
)

// Provider is the contract every vendor client implements. Clients own all
// vendor-specific HTTP and JSON handling and map vendor failures into the
// ProviderError taxonomy before returning; the router never sees a raw
// vendor response.
type Provider interface {
	Name() market.VendorID
	GetQuotes(ctx context.Context, symbols []string) ([]market.Quote, error)
	GetHistoricalBars(ctx context.Context, req market.BarsRequest) ([]market.Bar, error)
	GetNews(ctx context.Context, req market.NewsRequest) ([]market.NewsItem, error)
	HealthCheck(ctx context.Context) error
}

// ChainProvider is the optional options-chain capability. The router treats
// a vendor lacking it as a configuration error for that operation, not a
// runtime failure.
type ChainProvider interface {
	GetOptionsChain(ctx context.Context, req market.ChainRequest) (*market.OptionsChain, error)
}

// SymbolSearcher is the optional symbol lookup capability.
type SymbolSearcher interface {
	SearchSymbols(ctx context.Context, query string) ([]market.Symbol, error)
}

// LiquidityProvider is the optional open-interest/volume overlay used to
// enrich another vendor's options chain, keyed by contract symbol.
type LiquidityProvider interface {
	GetLiquidity(ctx context.Context, underlying string) (map[string]market.Liquidity, error)
}
