package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderbookSnapshot is a full snapshot of bids (price descending) and asks
// (price ascending) for a market. BestBid < BestAsk whenever both sides are
// non-empty.
type OrderbookSnapshot struct {
	MarketID  int
	Timestamp time.Time
	Bids      []PriceLevel
	Asks      []PriceLevel
}

// BestBid returns the best (highest) bid price, or 0 if no bids exist.
func (o OrderbookSnapshot) BestBid() float64 {
	if len(o.Bids) == 0 {
		return 0
	}
	return o.Bids[0].Price
}

// BestAsk returns the best (lowest) ask price, or 0 if no asks exist.
func (o OrderbookSnapshot) BestAsk() float64 {
	if len(o.Asks) == 0 {
		return 0
	}
	return o.Asks[0].Price
}

// ExchangePrice is a multi-source reference price for a symbol. Aggregated
// entries carry a compound Source tag listing contributors.
type ExchangePrice struct {
	Bid       float64
	Ask       float64
	Mid       float64
	Spread    float64
	Volume24h float64
	Timestamp time.Time
	Source    string
}

// HistoricalBar is one bar of OHLCV plus synthesized orderbook depth, used
// by the backtest engine and simulator. Invariant:
// low ≤ min(open,close) ≤ max(open,close) ≤ high.
type HistoricalBar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	BidDepth  float64
	AskDepth  float64
}
