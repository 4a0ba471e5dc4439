// Package spread implements the SpreadEngine: book health checks, mid
// price resolution, and the depth/imbalance-driven dynamic spread.
package spread

import (
	"github.com/nkassim/perpmm/internal/config"
	"github.com/nkassim/perpmm/internal/domain"
)

// Result is dynamicSpread's output.
type Result struct {
	Spread    float64
	Imbalance float64
	BidDepth  float64
	AskDepth  float64
}

// Engine implements the SpreadEngine component (C3).
type Engine struct {
	cfg config.SpreadConfig
}

// New creates an Engine bound to the given spread configuration.
func New(cfg config.SpreadConfig) *Engine {
	return &Engine{cfg: cfg}
}

// DynamicSpread computes the target spread from top-of-book depth
// imbalance, per spec.md §4.3.
func (e *Engine) DynamicSpread(book domain.OrderbookSnapshot) Result {
	d := e.cfg.DepthLevels
	if len(book.Bids) < d {
		d = len(book.Bids)
	}
	if len(book.Asks) < d {
		d = len(book.Asks)
	}

	var bidDepth, askDepth float64
	for i := 0; i < d; i++ {
		bidDepth += book.Bids[i].Size
	}
	for i := 0; i < d; i++ {
		askDepth += book.Asks[i].Size
	}

	var imbalance float64
	if total := bidDepth + askDepth; total != 0 {
		imbalance = (bidDepth - askDepth) / total
	}

	raw := e.cfg.Min + absFloat(imbalance)*(e.cfg.Max-e.cfg.Min)
	spread := clamp(raw, e.cfg.Min, e.cfg.Max)

	return Result{Spread: spread, Imbalance: imbalance, BidDepth: bidDepth, AskDepth: askDepth}
}

// Mid returns the arithmetic mean of best bid and best ask, and whether it
// is defined (both sides non-empty).
func (e *Engine) Mid(book domain.OrderbookSnapshot) (float64, bool) {
	bestBid := book.BestBid()
	bestAsk := book.BestAsk()
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return 0, false
	}
	return (bestBid + bestAsk) / 2, true
}

// IsHealthy reports whether book has at least 2 levels per side, a defined
// mid, and a top-of-book spread no wider than 5%.
func (e *Engine) IsHealthy(book domain.OrderbookSnapshot) bool {
	if len(book.Bids) < 2 || len(book.Asks) < 2 {
		return false
	}
	mid, ok := e.Mid(book)
	if !ok || mid == 0 {
		return false
	}
	topSpread := (book.BestAsk() - book.BestBid()) / mid
	return topSpread <= 0.05
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
