package domain

import (
	"context"
	"time"
)

// PricePoint is one cached sample returned by PriceCache.GetPrices.
type PricePoint struct {
	Price     float64
	Timestamp time.Time
}

// PriceCache is the distributed-cache contract PriceOracle can optionally
// use instead of (or in front of) its in-process map, keyed by symbol.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (float64, time.Time, error)
	// GetPrices batch-reads multiple symbols in one round trip, so the
	// periodic refresher can warm its in-process cache from a shared
	// backend without one request per symbol. Symbols with no cached
	// entry are omitted from the result.
	GetPrices(ctx context.Context, symbols []string) (map[string]PricePoint, error)
}
