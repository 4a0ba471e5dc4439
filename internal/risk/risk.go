// Package risk implements the RiskGate: exposure ratios and veto decisions
// evaluated before every quote cycle, in the ordered-checks-with-short-circuit
// shape of the teacher's RiskService.PreTradeCheck.
package risk

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nkassim/perpmm/internal/config"
	"github.com/nkassim/perpmm/internal/domain"
)

// Denial is a structured risk veto: a reason code plus a human-readable
// detail, logged and returned to the caller rather than propagated as an
// error string.
type Denial struct {
	Reason string
	Detail string
}

// Decision is the outcome of canQuote: either Allow is true, or Denial
// explains why not.
type Decision struct {
	Allow  bool
	Denial Denial
}

// AccountSnapshot is the subset of venue-reported account state RiskGate
// needs. Callers refresh this before every evaluation; RiskGate holds no
// state of its own.
type AccountSnapshot struct {
	Leverage          float64
	Balance           domain.Balance
	Position          domain.Position
	TotalExposureBase float64 // Σ|position.size·entryPrice| across all markets
	TotalCollateral   float64
}

// Gate implements the RiskGate component (C2).
type Gate struct {
	cfg    config.RiskConfig
	logger *slog.Logger
}

// New creates a Gate bound to the given risk configuration.
func New(cfg config.RiskConfig, logger *slog.Logger) *Gate {
	return &Gate{cfg: cfg, logger: logger.With(slog.String("component", "risk"))}
}

// CanQuote executes the four ordered checks from spec.md §4.2; the first
// failing check short-circuits the rest.
func (g *Gate) CanQuote(ctx context.Context, marketID int, snap AccountSnapshot) Decision {
	if !(snap.Leverage >= g.cfg.MinMarginFraction) {
		return g.deny(ctx, marketID, "margin_fraction_too_low",
			"margin fraction %.4f below minimum %.4f", snap.Leverage, g.cfg.MinMarginFraction)
	}

	if !(snap.Balance.Available >= g.cfg.MinFreeCollateral) {
		return g.deny(ctx, marketID, "insufficient_free_collateral",
			"available collateral %.2f below minimum %.2f", snap.Balance.Available, g.cfg.MinFreeCollateral)
	}

	notional := absFloat(snap.Position.Size * snap.Position.EntryPrice)
	marketCap := snap.Balance.Available * g.cfg.MaxExposurePerMarket
	if !(notional <= marketCap) {
		return g.deny(ctx, marketID, "max_exposure_per_market_exceeded",
			"position notional %.2f exceeds per-market cap %.2f", notional, marketCap)
	}

	if snap.TotalCollateral > 0 {
		totalRatio := snap.TotalExposureBase / snap.TotalCollateral
		if !(totalRatio <= g.cfg.MaxTotalExposure) {
			return g.deny(ctx, marketID, "max_total_exposure_exceeded",
				"total exposure ratio %.4f exceeds cap %.4f", totalRatio, g.cfg.MaxTotalExposure)
		}
	}

	return Decision{Allow: true}
}

// PositionRatio returns the signed, dimensionless exposure ratio used by
// InventoryShaper's skew computation:
// (position.size · referencePrice) / (availableCollateral · maxExposurePerMarket).
// Zero when there is no position or available collateral is zero.
func (g *Gate) PositionRatio(position domain.Position, availableCollateral, referencePrice float64) float64 {
	if availableCollateral == 0 || position.Size == 0 {
		return 0
	}
	denom := availableCollateral * g.cfg.MaxExposurePerMarket
	if denom == 0 {
		return 0
	}
	return (position.Size * referencePrice) / denom
}

// CancelAllFn is the venue call EmergencyCancelAll delegates to.
type CancelAllFn func(ctx context.Context) error

// EmergencyCancelAll instructs the venue to cancel every resting order.
// Used on shutdown and catastrophic failure; failures are logged, not
// retried.
func (g *Gate) EmergencyCancelAll(ctx context.Context, cancelAll CancelAllFn) {
	if err := cancelAll(ctx); err != nil {
		g.logger.ErrorContext(ctx, "emergency cancel all failed", slog.String("error", err.Error()))
	}
}

func (g *Gate) deny(ctx context.Context, marketID int, reason, detailFmt string, args ...any) Decision {
	detail := fmt.Sprintf(detailFmt, args...)
	g.logger.WarnContext(ctx, "risk denied",
		slog.Int("market_id", marketID),
		slog.String("reason", reason),
		slog.String("detail", detail),
	)
	return Decision{Allow: false, Denial: Denial{Reason: reason, Detail: detail}}
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
