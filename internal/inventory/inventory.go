// Package inventory implements the InventoryShaper: position-derived skew
// and per-market bias combined into a symmetric bid/ask price adjustment.
package inventory

import (
	"strconv"

	"github.com/nkassim/perpmm/internal/config"
	"github.com/nkassim/perpmm/internal/domain"
	"github.com/nkassim/perpmm/internal/risk"
)

// Adjustment is Shape's output.
type Adjustment struct {
	BidPrice      float64
	AskPrice      float64
	SkewFactor    float64
	Bias          float64
	PositionRatio float64
}

// Shaper implements the InventoryShaper component (C5).
type Shaper struct {
	cfg  config.Config
	risk *risk.Gate
}

// New creates a Shaper bound to the root config and the RiskGate it reads
// position ratios from.
func New(cfg config.Config, gate *risk.Gate) *Shaper {
	return &Shaper{cfg: cfg, risk: gate}
}

func (s *Shaper) bias(marketID int) float64 {
	if asset, ok := s.cfg.Assets[strconv.Itoa(marketID)]; ok {
		return asset.Bias
	}
	return s.cfg.DefaultBias
}

// Shape computes {bidPrice, askPrice, skewFactor, bias, positionRatio} for
// a market given its base price and target spread, per spec.md §4.5.
func (s *Shaper) Shape(marketID int, basePrice, spread float64, position domain.Position, availableCollateral float64) Adjustment {
	bias := s.bias(marketID)
	r := s.risk.PositionRatio(position, availableCollateral, basePrice)

	if !s.cfg.InventorySkewEnabled {
		return Adjustment{
			BidPrice:      basePrice * (1 - spread/2 + bias),
			AskPrice:      basePrice * (1 + spread/2 + bias),
			SkewFactor:    0,
			Bias:          bias,
			PositionRatio: r,
		}
	}

	var skewFactor float64
	if absFloat(r) > 0.05 {
		skewFactor = r * s.cfg.InventorySkewFactor
	}
	adjustment := skewFactor + bias
	adjustedBase := basePrice * (1 + adjustment)

	return Adjustment{
		BidPrice:      adjustedBase * (1 - spread/2),
		AskPrice:      adjustedBase * (1 + spread/2),
		SkewFactor:    skewFactor,
		Bias:          bias,
		PositionRatio: r,
	}
}

// NeedsHedge reports whether autoHedge is enabled and the market's position
// ratio exceeds the configured imbalance threshold.
func (s *Shaper) NeedsHedge(marketID int, position domain.Position, availableCollateral, midPrice float64) bool {
	if !s.cfg.AutoHedge.Enabled {
		return false
	}
	r := s.risk.PositionRatio(position, availableCollateral, midPrice)
	return absFloat(r) > s.cfg.AutoHedge.ImbalanceThreshold
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
