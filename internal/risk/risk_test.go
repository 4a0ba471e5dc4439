package risk

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/nkassim/perpmm/internal/config"
	"github.com/nkassim/perpmm/internal/domain"
)

func testGate() *Gate {
	cfg := config.RiskConfig{
		MinMarginFraction:    0.18,
		MaxExposurePerSide:   0.5,
		MaxExposurePerMarket: 0.3,
		MaxTotalExposure:     0.8,
		MinFreeCollateral:    100,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, logger)
}

func TestCanQuoteOrderedChecks(t *testing.T) {
	base := AccountSnapshot{
		Leverage:          0.5,
		Balance:           domain.Balance{Total: 10_000, Available: 5_000},
		Position:          domain.Position{Size: 1, EntryPrice: 100},
		TotalExposureBase: 100,
		TotalCollateral:   10_000,
	}

	tests := []struct {
		name       string
		mutate     func(s AccountSnapshot) AccountSnapshot
		wantAllow  bool
		wantReason string
	}{
		{
			name:      "passes all checks",
			mutate:    func(s AccountSnapshot) AccountSnapshot { return s },
			wantAllow: true,
		},
		{
			name: "margin fraction too low short-circuits everything else",
			mutate: func(s AccountSnapshot) AccountSnapshot {
				s.Leverage = 0.1
				s.Balance.Available = 0 // would also fail the next check
				return s
			},
			wantAllow:  false,
			wantReason: "margin_fraction_too_low",
		},
		{
			name: "insufficient free collateral",
			mutate: func(s AccountSnapshot) AccountSnapshot {
				s.Balance.Available = 50
				return s
			},
			wantAllow:  false,
			wantReason: "insufficient_free_collateral",
		},
		{
			name: "per-market exposure exceeded",
			mutate: func(s AccountSnapshot) AccountSnapshot {
				s.Position = domain.Position{Size: 100, EntryPrice: 100}
				return s
			},
			wantAllow:  false,
			wantReason: "max_exposure_per_market_exceeded",
		},
		{
			name: "total exposure exceeded",
			mutate: func(s AccountSnapshot) AccountSnapshot {
				s.TotalExposureBase = 9_000
				return s
			},
			wantAllow:  false,
			wantReason: "max_total_exposure_exceeded",
		},
	}

	gate := testGate()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := gate.CanQuote(context.Background(), 1, tt.mutate(base))
			if decision.Allow != tt.wantAllow {
				t.Fatalf("Allow = %v, want %v (denial: %+v)", decision.Allow, tt.wantAllow, decision.Denial)
			}
			if !tt.wantAllow && decision.Denial.Reason != tt.wantReason {
				t.Errorf("Denial.Reason = %q, want %q", decision.Denial.Reason, tt.wantReason)
			}
		})
	}
}

func TestCanQuoteSkipsTotalExposureCheckWhenNoCollateral(t *testing.T) {
	gate := testGate()
	snap := AccountSnapshot{
		Leverage:          0.5,
		Balance:           domain.Balance{Total: 10_000, Available: 5_000},
		Position:          domain.Position{Size: 1, EntryPrice: 100},
		TotalExposureBase: 1_000_000,
		TotalCollateral:   0,
	}
	decision := gate.CanQuote(context.Background(), 1, snap)
	if !decision.Allow {
		t.Fatalf("expected allow when TotalCollateral is zero, got denial: %+v", decision.Denial)
	}
}

func TestPositionRatioZeroGuards(t *testing.T) {
	gate := testGate()

	if r := gate.PositionRatio(domain.Position{Size: 0}, 1000, 100); r != 0 {
		t.Errorf("expected 0 ratio for flat position, got %v", r)
	}
	if r := gate.PositionRatio(domain.Position{Size: 1}, 0, 100); r != 0 {
		t.Errorf("expected 0 ratio for zero available collateral, got %v", r)
	}
}

func TestPositionRatioSignAndMagnitude(t *testing.T) {
	gate := testGate()

	pos := domain.Position{Size: 10, EntryPrice: 100}
	got := gate.PositionRatio(pos, 10_000, 100)
	want := (10 * 100.0) / (10_000 * 0.3)
	if got != want {
		t.Errorf("PositionRatio = %v, want %v", got, want)
	}

	short := domain.Position{Size: -10, EntryPrice: 100}
	gotShort := gate.PositionRatio(short, 10_000, 100)
	if gotShort >= 0 {
		t.Errorf("expected negative ratio for short position, got %v", gotShort)
	}
}

func TestEmergencyCancelAllLogsFailure(t *testing.T) {
	gate := testGate()
	called := false
	gate.EmergencyCancelAll(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if !called {
		t.Fatal("expected cancelAll to be invoked")
	}
}
