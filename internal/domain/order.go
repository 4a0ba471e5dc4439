package domain

import "time"

// Side indicates which side of the book an order rests on.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// Opposite returns the other side, used when sizing a reduce-only hedge.
func (s Side) Opposite() Side {
	if s == SideBid {
		return SideAsk
	}
	return SideBid
}

// FillMode is the order's time-in-force / execution policy.
type FillMode string

const (
	FillModeLimit  FillMode = "limit"
	FillModeMarket FillMode = "market"
	FillModeIOC    FillMode = "ioc"
	FillModeFOK    FillMode = "fok"
)

// OrderIntent is an unplaced order description produced by the quoting
// pipeline or the hedge executor.
type OrderIntent struct {
	MarketID   int
	Side       Side
	Price      float64 // zero/ignored for market orders
	Size       float64
	FillMode   FillMode
	ReduceOnly bool
}

// RestingOrder is a venue-assigned order, as tracked locally. Filled is
// only meaningful in the backtest engine; the live venue is authoritative
// for fill state there.
type RestingOrder struct {
	ID          string
	MarketID    int
	Side        Side
	Price       float64
	Size        float64
	FillMode    FillMode
	ReduceOnly  bool
	PlacedAt    time.Time
	Filled      bool
	FilledAt    time.Time
	FilledPrice float64
}

// QuoteLadder is the set of resting quotes a single quoting cycle produced
// for one market.
type QuoteLadder struct {
	MarketID  int
	Bids      []PriceLevel // best first
	Asks      []PriceLevel // best first
	Generated time.Time
}

// LastQuotePrices is the best bid/ask a market last successfully quoted.
// Created on the first successful quote; updated on every requote that
// passes the threshold gate; never cleared while the market is subscribed.
type LastQuotePrices struct {
	MarketID  int
	BestBid   float64
	BestAsk   float64
	Timestamp time.Time
}
