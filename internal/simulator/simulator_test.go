package simulator

import (
	"testing"
	"time"
)

// cyclicRand cycles through a fixed sequence of uniform draws, avoiding the
// 0/1 edge cases that make math.Log/math.Sqrt misbehave in Box-Muller.
type cyclicRand struct {
	values []float64
	i      int
}

func (c *cyclicRand) Float64() float64 {
	v := c.values[c.i%len(c.values)]
	c.i++
	return v
}

func newCyclicRand() *cyclicRand {
	return &cyclicRand{values: []float64{0.2, 0.5, 0.7, 0.35, 0.9, 0.1, 0.6, 0.45}}
}

func TestGenerateProducesRequestedBarCount(t *testing.T) {
	gen := NewGenerator(DefaultParams(), ScenarioNone, newCyclicRand())
	bars := gen.Generate(20, 50_000, time.Now())
	if len(bars) != 20 {
		t.Fatalf("expected 20 bars, got %d", len(bars))
	}
}

func TestGenerateMaintainsOHLCInvariant(t *testing.T) {
	gen := NewGenerator(DefaultParams(), ScenarioNone, newCyclicRand())
	bars := gen.Generate(50, 50_000, time.Now())
	for i, bar := range bars {
		lo := min(bar.Open, bar.Close)
		hi := max(bar.Open, bar.Close)
		if bar.Low > lo {
			t.Errorf("bar %d: Low %v must be <= min(open,close) %v", i, bar.Low, lo)
		}
		if bar.High < hi {
			t.Errorf("bar %d: High %v must be >= max(open,close) %v", i, bar.High, hi)
		}
	}
}

func TestGenerateChainsBarsSequentially(t *testing.T) {
	gen := NewGenerator(DefaultParams(), ScenarioNone, newCyclicRand())
	bars := gen.Generate(5, 50_000, time.Now())
	for i := 1; i < len(bars); i++ {
		if bars[i].Open != bars[i-1].Close {
			t.Errorf("bar %d Open %v should equal previous bar's Close %v", i, bars[i].Open, bars[i-1].Close)
		}
	}
}

func TestApplyScenarioIlliquidTightensDepthAndWidensVolatility(t *testing.T) {
	base := DefaultParams()
	got := applyScenario(base, ScenarioIlliquid)
	if got.Volatility != base.Volatility*2 {
		t.Errorf("expected doubled volatility, got %v vs base %v", got.Volatility, base.Volatility)
	}
	if got.DepthMax != base.DepthMin {
		t.Errorf("expected illiquid DepthMax to collapse to base DepthMin, got %v vs %v", got.DepthMax, base.DepthMin)
	}
}

func TestApplyScenarioTrendingSetsDirectionalStrength(t *testing.T) {
	up := applyScenario(DefaultParams(), ScenarioTrendingUp)
	if up.TrendStrength <= 0 {
		t.Errorf("expected positive trend strength for trending_up, got %v", up.TrendStrength)
	}
	down := applyScenario(DefaultParams(), ScenarioTrendingDown)
	if down.TrendStrength >= 0 {
		t.Errorf("expected negative trend strength for trending_down, got %v", down.TrendStrength)
	}
}

func TestApplyScenarioNoneLeavesParamsUnchanged(t *testing.T) {
	base := DefaultParams()
	got := applyScenario(base, ScenarioNone)
	if got != base {
		t.Errorf("expected ScenarioNone to leave params unchanged, got %+v vs %+v", got, base)
	}
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
