package hedge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/nkassim/perpmm/internal/domain"
	"github.com/nkassim/perpmm/internal/venue"
)

type fakeUserAPI struct {
	placed  []domain.OrderIntent
	orderID string
	err     error
}

func (f *fakeUserAPI) UpdateAccountID(ctx context.Context) error { return nil }
func (f *fakeUserAPI) FetchInfo(ctx context.Context) (venue.AccountInfo, error) {
	return venue.AccountInfo{}, nil
}
func (f *fakeUserAPI) GetLeverage(ctx context.Context, marketID int) (float64, error) {
	return 1, nil
}
func (f *fakeUserAPI) PlaceOrder(ctx context.Context, intent domain.OrderIntent) (string, error) {
	f.placed = append(f.placed, intent)
	return f.orderID, f.err
}
func (f *fakeUserAPI) CancelOrder(ctx context.Context, orderID string) error { return nil }
func (f *fakeUserAPI) CancelAllOrders(ctx context.Context, marketID *int) error { return nil }

func newExecutor(user *fakeUserAPI) *Executor {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(user, logger)
}

func TestHedgeNoOpOnFlatPosition(t *testing.T) {
	user := &fakeUserAPI{}
	e := newExecutor(user)
	e.Hedge(context.Background(), 1, domain.Position{Size: 0})
	if len(user.placed) != 0 {
		t.Fatalf("expected no order placed for a flat position, got %d", len(user.placed))
	}
}

func TestHedgeSellsAgainstLongPosition(t *testing.T) {
	user := &fakeUserAPI{orderID: "abc"}
	e := newExecutor(user)
	e.Hedge(context.Background(), 1, domain.Position{Size: 10, EntryPrice: 100})

	if len(user.placed) != 1 {
		t.Fatalf("expected exactly one order placed, got %d", len(user.placed))
	}
	intent := user.placed[0]
	if intent.Side != domain.SideAsk {
		t.Errorf("expected ask side to reduce a long position, got %v", intent.Side)
	}
	if intent.Size != 3 {
		t.Errorf("expected size 30%% of position magnitude (3), got %v", intent.Size)
	}
	if !intent.ReduceOnly {
		t.Error("expected hedge order to be reduce-only")
	}
	if intent.FillMode != domain.FillModeMarket {
		t.Errorf("expected market fill mode, got %v", intent.FillMode)
	}
}

func TestHedgeBuysAgainstShortPosition(t *testing.T) {
	user := &fakeUserAPI{orderID: "abc"}
	e := newExecutor(user)
	e.Hedge(context.Background(), 1, domain.Position{Size: -10, EntryPrice: 100})

	intent := user.placed[0]
	if intent.Side != domain.SideBid {
		t.Errorf("expected bid side to reduce a short position, got %v", intent.Side)
	}
	if intent.Size != 3 {
		t.Errorf("expected size 3, got %v", intent.Size)
	}
}

func TestHedgeSwallowsPlacementFailure(t *testing.T) {
	user := &fakeUserAPI{err: errors.New("venue unavailable")}
	e := newExecutor(user)
	e.Hedge(context.Background(), 1, domain.Position{Size: 5, EntryPrice: 100})
	if len(user.placed) != 1 {
		t.Fatal("expected the order attempt to still be recorded even though placement failed")
	}
}
