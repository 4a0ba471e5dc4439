package venue

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nkassim/perpmm/internal/domain"
)

// Paper is an in-memory venue used by the `test` CLI command and any
// component test that needs a working SDK without a network connection.
// It never fills orders on its own; the backtest engine drives its own
// fill sweep directly against domain.RestingOrder and does not go through
// this type at all.
type Paper struct {
	mu        sync.Mutex
	markets   []domain.Market
	orders    map[string]domain.RestingOrder
	positions map[int]domain.Position
	balance   domain.Balance
	leverage  map[int]float64
	handler   OrderbookHandler
}

// NewPaper creates a Paper venue seeded with the given markets and an
// initial balance.
func NewPaper(markets []domain.Market, startBalance float64) *Paper {
	return &Paper{
		markets:   markets,
		orders:    make(map[string]domain.RestingOrder),
		positions: make(map[int]domain.Position),
		leverage:  make(map[int]float64),
		balance:   domain.Balance{Total: startBalance, Available: startBalance},
	}
}

func (p *Paper) GetAllMarkets(ctx context.Context) ([]domain.Market, error) {
	return p.markets, nil
}

func (p *Paper) SubscribeOrderbook(ctx context.Context, marketID int) error   { return nil }
func (p *Paper) UnsubscribeOrderbook(ctx context.Context, marketID int) error { return nil }

func (p *Paper) OnOrderbookUpdate(handler OrderbookHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = handler
}

// PushOrderbook lets test code drive the registered handler directly.
func (p *Paper) PushOrderbook(book domain.OrderbookSnapshot) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h(book)
	}
}

func (p *Paper) User() UserAPI { return p }

func (p *Paper) UpdateAccountID(ctx context.Context) error { return nil }

func (p *Paper) FetchInfo(ctx context.Context) (AccountInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	positions := make(map[int]domain.Position, len(p.positions))
	for k, v := range p.positions {
		positions[k] = v
	}
	orders := make(map[string]domain.RestingOrder, len(p.orders))
	for k, v := range p.orders {
		orders[k] = v
	}
	return AccountInfo{Balance: p.balance, Positions: positions, Orders: orders}, nil
}

func (p *Paper) GetLeverage(ctx context.Context, marketID int) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if lev, ok := p.leverage[marketID]; ok {
		return lev, nil
	}
	return 1.0, nil
}

// SetLeverage lets test code control the margin fraction RiskGate sees.
func (p *Paper) SetLeverage(marketID int, leverage float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leverage[marketID] = leverage
}

// SetPosition lets test code seed a resting position directly, since Paper
// never fills orders on its own.
func (p *Paper) SetPosition(marketID int, pos domain.Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions[marketID] = pos
}

func (p *Paper) PlaceOrder(ctx context.Context, intent domain.OrderIntent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := uuid.NewString()
	p.orders[id] = domain.RestingOrder{
		ID:         id,
		MarketID:   intent.MarketID,
		Side:       intent.Side,
		Price:      intent.Price,
		Size:       intent.Size,
		FillMode:   intent.FillMode,
		ReduceOnly: intent.ReduceOnly,
	}
	return id, nil
}

func (p *Paper) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.orders[orderID]; !ok {
		return fmt.Errorf("venue: order %s not found", orderID)
	}
	delete(p.orders, orderID)
	return nil
}

func (p *Paper) CancelAllOrders(ctx context.Context, marketID *int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, o := range p.orders {
		if marketID == nil || o.MarketID == *marketID {
			delete(p.orders, id)
		}
	}
	return nil
}

var _ SDK = (*Paper)(nil)
var _ UserAPI = (*Paper)(nil)
