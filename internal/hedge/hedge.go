// Package hedge implements the HedgeExecutor: a single reduce-only market
// order emitted when InventoryShaper signals the position has drifted too
// far from neutral.
package hedge

import (
	"context"
	"log/slog"

	"github.com/nkassim/perpmm/internal/domain"
	"github.com/nkassim/perpmm/internal/venue"
)

const hedgeRatio = 0.30

// Executor implements the HedgeExecutor component (C7).
type Executor struct {
	user   venue.UserAPI
	logger *slog.Logger
}

// New creates an Executor bound to the venue's order-management surface.
func New(user venue.UserAPI, logger *slog.Logger) *Executor {
	return &Executor{user: user, logger: logger.With(slog.String("component", "hedge"))}
}

// Hedge emits a reduce-only market order opposite the current position,
// sized at 30% of its magnitude. Failures are logged and swallowed;
// hedging is advisory and never blocks the quoting pipeline.
func (e *Executor) Hedge(ctx context.Context, marketID int, position domain.Position) {
	if position.Size == 0 {
		return
	}

	side := domain.SideAsk
	if position.Size < 0 {
		side = domain.SideBid
	}

	size := absFloat(position.Size) * hedgeRatio
	intent := domain.OrderIntent{
		MarketID:   marketID,
		Side:       side,
		Size:       size,
		FillMode:   domain.FillModeMarket,
		ReduceOnly: true,
	}

	orderID, err := e.user.PlaceOrder(ctx, intent)
	if err != nil {
		e.logger.WarnContext(ctx, "hedge order failed",
			slog.Int("market_id", marketID),
			slog.String("error", err.Error()))
		return
	}

	e.logger.InfoContext(ctx, "hedge order placed",
		slog.Int("market_id", marketID),
		slog.String("order_id", orderID),
		slog.Float64("size", size),
		slog.String("side", string(side)))
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
