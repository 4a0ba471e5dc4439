package backtest

import (
	"testing"
	"time"

	"github.com/nkassim/perpmm/internal/domain"
)

// constRand always returns the same draw, so fillProbability comparisons are
// deterministic: a draw of 0 fills every order regardless of probability; a
// draw of 1 fills nothing.
type constRand struct{ v float64 }

func (c constRand) Float64() float64 { return c.v }

func TestFillProbabilityBid(t *testing.T) {
	tests := []struct {
		name  string
		bar   domain.HistoricalBar
		price float64
		want  float64
	}{
		{"low touches price", domain.HistoricalBar{Low: 99, Close: 100}, 99, fillProbHit},
		{"close below price but low doesn't reach", domain.HistoricalBar{Low: 100.2, Close: 99.8}, 100, fillProbNear},
		{"far from price", domain.HistoricalBar{Low: 99.5, Close: 100.5}, 90, fillProbFar},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := domain.RestingOrder{Side: domain.SideBid, Price: tt.price}
			if got := fillProbability(order, tt.bar); got != tt.want {
				t.Errorf("fillProbability() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFillProbabilityAsk(t *testing.T) {
	tests := []struct {
		name  string
		bar   domain.HistoricalBar
		price float64
		want  float64
	}{
		{"high touches price", domain.HistoricalBar{High: 101, Close: 100}, 101, fillProbHit},
		{"close above price but high doesn't reach", domain.HistoricalBar{High: 99.8, Close: 100.1}, 100, fillProbNear},
		{"far from price", domain.HistoricalBar{High: 100.5, Close: 99.5}, 110, fillProbFar},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := domain.RestingOrder{Side: domain.SideAsk, Price: tt.price}
			if got := fillProbability(order, tt.bar); got != tt.want {
				t.Errorf("fillProbability() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUpdatePositionOpensFlatToLong(t *testing.T) {
	pos := domain.Position{}
	balance := 10_000.0
	updatePosition(&pos, &balance, domain.SideBid, 2, 100)

	if pos.Size != 2 {
		t.Errorf("Size = %v, want 2", pos.Size)
	}
	if pos.EntryPrice != 100 {
		t.Errorf("EntryPrice = %v, want 100", pos.EntryPrice)
	}
	if balance != 10_000 {
		t.Errorf("balance should be unaffected by opening a position, got %v", balance)
	}
}

func TestUpdatePositionIncreasesWithWeightedAverageEntry(t *testing.T) {
	pos := domain.Position{Size: 1, EntryPrice: 100}
	balance := 10_000.0
	updatePosition(&pos, &balance, domain.SideBid, 1, 120)

	if pos.Size != 2 {
		t.Fatalf("Size = %v, want 2", pos.Size)
	}
	wantEntry := (1*100.0 + 1*120.0) / 2
	if pos.EntryPrice != wantEntry {
		t.Errorf("EntryPrice = %v, want %v", pos.EntryPrice, wantEntry)
	}
}

func TestUpdatePositionReducesAndRealizesPnL(t *testing.T) {
	pos := domain.Position{Size: 2, EntryPrice: 100}
	balance := 10_000.0
	updatePosition(&pos, &balance, domain.SideAsk, 1, 110)

	if pos.Size != 1 {
		t.Fatalf("Size = %v, want 1", pos.Size)
	}
	if pos.EntryPrice != 100 {
		t.Errorf("EntryPrice should be unchanged on a partial reduce, got %v", pos.EntryPrice)
	}
	wantBalance := 10_000.0 + 1*(110-100)
	if balance != wantBalance {
		t.Errorf("balance = %v, want %v", balance, wantBalance)
	}
}

func TestUpdatePositionFlipsSignAndResetsEntry(t *testing.T) {
	pos := domain.Position{Size: 1, EntryPrice: 100}
	balance := 10_000.0
	updatePosition(&pos, &balance, domain.SideAsk, 3, 90)

	if pos.Size != -2 {
		t.Fatalf("Size = %v, want -2", pos.Size)
	}
	if pos.EntryPrice != 90 {
		t.Errorf("EntryPrice on sign flip should reset to the fill price, got %v", pos.EntryPrice)
	}
	wantBalance := 10_000.0 + 1*(90-100)
	if balance != wantBalance {
		t.Errorf("balance = %v, want %v", balance, wantBalance)
	}
}

func TestUpdatePositionClosingToFlatResetsEntryToZero(t *testing.T) {
	pos := domain.Position{Size: 2, EntryPrice: 100}
	balance := 10_000.0
	updatePosition(&pos, &balance, domain.SideAsk, 2, 105)

	if pos.Size != 0 {
		t.Fatalf("Size = %v, want 0", pos.Size)
	}
	if pos.EntryPrice != 0 {
		t.Errorf("EntryPrice should reset to 0 when flat, got %v", pos.EntryPrice)
	}
}

func TestSharpeRatioEmptyOrSingleReturnsZero(t *testing.T) {
	if r := sharpeRatio(nil); r != 0 {
		t.Errorf("expected 0 for empty equity curve, got %v", r)
	}
	single := []domain.EquityPoint{{Equity: 100}}
	if r := sharpeRatio(single); r != 0 {
		t.Errorf("expected 0 for single-point equity curve, got %v", r)
	}
}

func TestSharpeRatioPositiveForSteadyGains(t *testing.T) {
	equity := []domain.EquityPoint{{Equity: 100}, {Equity: 101}, {Equity: 102}, {Equity: 103}}
	if r := sharpeRatio(equity); r <= 0 {
		t.Errorf("expected positive sharpe ratio for steadily increasing equity, got %v", r)
	}
}

func TestDrawdownStatsTracksPeakToTroughDrop(t *testing.T) {
	equity := []domain.EquityPoint{
		{Equity: 100}, {Equity: 120}, {Equity: 90}, {Equity: 95}, {Equity: 130},
	}
	maxDD, avgDD, duration := drawdownStats(equity)
	wantMaxDD := (120.0 - 90.0) / 120.0
	if maxDD != wantMaxDD {
		t.Errorf("maxDD = %v, want %v", maxDD, wantMaxDD)
	}
	if avgDD <= 0 {
		t.Errorf("expected positive avgDD, got %v", avgDD)
	}
	if duration != 2 {
		t.Errorf("duration = %v, want 2", duration)
	}
}

func TestRunProducesEquityPointPerBar(t *testing.T) {
	cfg := testConfig()
	engine := New(cfg, spreadEngineForTest(cfg), constRand{v: 1}) // never fills
	market := domain.Market{ID: 1, TickSize: 0.1, MinSize: 0.001}

	bars := makeBars(5, 50_000)
	result, equity := engine.Run(bars, market)

	if result.StartBalance != defaultStartBalance {
		t.Errorf("StartBalance = %v, want %v", result.StartBalance, defaultStartBalance)
	}
	if result.NumTrades != 0 {
		t.Errorf("expected zero trades when fills never occur, got %d", result.NumTrades)
	}
	if len(equity) != len(bars) {
		t.Fatalf("len(equity) = %d, want one point per bar (%d)", len(equity), len(bars))
	}
	for i := 1; i < len(equity); i++ {
		if equity[i].Timestamp <= equity[i-1].Timestamp {
			t.Errorf("equity[%d].Timestamp = %d, want strictly greater than equity[%d].Timestamp = %d",
				i, equity[i].Timestamp, i-1, equity[i-1].Timestamp)
		}
	}
}

func TestRunWithGuaranteedFillsProducesTrades(t *testing.T) {
	cfg := testConfig()
	engine := New(cfg, spreadEngineForTest(cfg), constRand{v: 0}) // always fills
	market := domain.Market{ID: 1, TickSize: 0.1, MinSize: 0.001}

	bars := makeBars(10, 50_000)
	result, _ := engine.Run(bars, market)

	// Orders quoted on the last bar are never swept, so every order except
	// those fills: (bars-1)/bars of everything placed.
	wantFillRate := float64(len(bars)-1) / float64(len(bars))
	if result.FillRate != wantFillRate {
		t.Errorf("FillRate = %v, want %v when every draw beats fill probability", result.FillRate, wantFillRate)
	}
}

func makeBars(n int, start float64) []domain.HistoricalBar {
	bars := make([]domain.HistoricalBar, n)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	price := start
	for i := range bars {
		bars[i] = domain.HistoricalBar{
			Timestamp: now.Add(time.Duration(i) * time.Minute),
			Open:      price,
			High:      price * 1.001,
			Low:       price * 0.999,
			Close:     price,
			Volume:    100,
			BidDepth:  50,
			AskDepth:  50,
		}
	}
	return bars
}
