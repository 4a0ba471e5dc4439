package inventory

import (
	"io"
	"log/slog"
	"testing"

	"github.com/nkassim/perpmm/internal/config"
	"github.com/nkassim/perpmm/internal/domain"
	"github.com/nkassim/perpmm/internal/risk"
)

func newShaper(cfg config.Config) *Shaper {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := risk.New(cfg.Risk, logger)
	return New(cfg, gate)
}

func TestShapeSkewDisabledIsSymmetricAroundBiasedBase(t *testing.T) {
	cfg := config.Defaults()
	cfg.InventorySkewEnabled = false
	cfg.DefaultBias = 0.002
	shaper := newShaper(cfg)

	base, spreadFrac, bias := 100.0, 0.01, 0.002
	adj := shaper.Shape(1, base, spreadFrac, domain.Position{Size: 5, EntryPrice: 100}, 1000)
	if adj.SkewFactor != 0 {
		t.Errorf("expected zero skew factor when skew is disabled, got %v", adj.SkewFactor)
	}
	if adj.Bias != 0.002 {
		t.Errorf("expected default bias to apply, got %v", adj.Bias)
	}
	// Evaluated in float64 (not as untyped constants) so the expected values
	// carry the same rounding as Shape's own arithmetic.
	wantBid := base * (1 - spreadFrac/2 + bias)
	wantAsk := base * (1 + spreadFrac/2 + bias)
	if adj.BidPrice != wantBid {
		t.Errorf("BidPrice = %v, want %v", adj.BidPrice, wantBid)
	}
	if adj.AskPrice != wantAsk {
		t.Errorf("AskPrice = %v, want %v", adj.AskPrice, wantAsk)
	}
}

func TestShapeUsesPerMarketBiasOverride(t *testing.T) {
	cfg := config.Defaults()
	cfg.InventorySkewEnabled = false
	cfg.DefaultBias = 0
	cfg.Assets = map[string]config.AssetConfig{"7": {Bias: -0.003}}
	shaper := newShaper(cfg)

	adj := shaper.Shape(7, 100, 0.01, domain.Position{}, 1000)
	if adj.Bias != -0.003 {
		t.Errorf("expected per-market bias override -0.003, got %v", adj.Bias)
	}
}

func TestShapeSkewEnabledIgnoresSmallPositionRatio(t *testing.T) {
	cfg := config.Defaults()
	cfg.InventorySkewEnabled = true
	cfg.InventorySkewFactor = 0.1
	shaper := newShaper(cfg)

	// Small position relative to collateral*maxExposurePerMarket keeps |ratio| <= 0.05.
	adj := shaper.Shape(1, 100, 0.01, domain.Position{Size: 0.1, EntryPrice: 100}, 100_000)
	if adj.SkewFactor != 0 {
		t.Errorf("expected skew factor to stay zero below the 0.05 ratio threshold, got %v", adj.SkewFactor)
	}
}

func TestShapeSkewEnabledAppliesSkewAboveThreshold(t *testing.T) {
	cfg := config.Defaults()
	cfg.InventorySkewEnabled = true
	cfg.InventorySkewFactor = 0.1
	cfg.Risk.MaxExposurePerMarket = 0.3
	shaper := newShaper(cfg)

	position := domain.Position{Size: 100, EntryPrice: 100}
	adj := shaper.Shape(1, 100, 0.01, position, 1000)
	if adj.SkewFactor == 0 {
		t.Fatal("expected nonzero skew factor for a large long position")
	}
	if adj.SkewFactor <= 0 {
		t.Errorf("expected positive skew factor pushing quotes up for a long position, got %v", adj.SkewFactor)
	}
	// A long position should push both bid and ask up relative to the unskewed symmetric quote.
	unskewedMid := (100*(1-0.01/2) + 100*(1+0.01/2)) / 2
	skewedMid := (adj.BidPrice + adj.AskPrice) / 2
	if skewedMid <= unskewedMid {
		t.Errorf("expected skewed mid %v above unskewed mid %v for long inventory", skewedMid, unskewedMid)
	}
}

func TestNeedsHedgeDisabledAlwaysFalse(t *testing.T) {
	cfg := config.Defaults()
	cfg.AutoHedge.Enabled = false
	shaper := newShaper(cfg)

	position := domain.Position{Size: 1000, EntryPrice: 100}
	if shaper.NeedsHedge(1, position, 10, 100) {
		t.Error("expected NeedsHedge to be false when auto_hedge is disabled")
	}
}

func TestNeedsHedgeTriggersAboveThreshold(t *testing.T) {
	cfg := config.Defaults()
	cfg.AutoHedge.Enabled = true
	cfg.AutoHedge.ImbalanceThreshold = 0.1
	cfg.Risk.MaxExposurePerMarket = 0.3
	shaper := newShaper(cfg)

	position := domain.Position{Size: 1000, EntryPrice: 100}
	if !shaper.NeedsHedge(1, position, 1000, 100) {
		t.Error("expected NeedsHedge to trigger for a large imbalanced position")
	}
}
