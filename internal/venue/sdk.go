// Package venue defines the contract the quoting engine, risk gate, and
// hedge executor consume to talk to the perpetual-futures exchange, plus a
// REST/WS implementation and an in-memory paper implementation for
// test/backtest/simulate modes. The real signing and transport protocol of
// any specific venue are out of scope; this package specifies the shape the
// core pipeline depends on (spec.md §6) and gives it one concrete, usable
// backend per mode.
package venue

import (
	"context"

	"github.com/nkassim/perpmm/internal/domain"
)

// OrderbookHandler is invoked serially for every orderbook update across
// every subscribed market; the SDK makes exactly one registration.
type OrderbookHandler func(domain.OrderbookSnapshot)

// AccountInfo bundles the account state fetched by User.fetchInfo.
type AccountInfo struct {
	Balance   domain.Balance
	Positions map[int]domain.Position // by market id
	Orders    map[string]domain.RestingOrder
}

// SDK is the venue contract the core pipeline consumes. Every method may
// block; callers are expected to run it on their own goroutine/event loop
// and treat failures as VenueError (logged, not retried within the same
// cycle).
type SDK interface {
	// GetAllMarkets lists every tradable market.
	GetAllMarkets(ctx context.Context) ([]domain.Market, error)

	// SubscribeOrderbook/UnsubscribeOrderbook manage the live feed for a
	// market. OnOrderbookUpdate registers the single global handler;
	// calling it twice replaces the previous handler.
	SubscribeOrderbook(ctx context.Context, marketID int) error
	UnsubscribeOrderbook(ctx context.Context, marketID int) error
	OnOrderbookUpdate(handler OrderbookHandler)

	// User is the account-state and order-management surface.
	User() UserAPI
}

// UserAPI is the account/order sub-surface of the venue SDK.
type UserAPI interface {
	UpdateAccountID(ctx context.Context) error
	FetchInfo(ctx context.Context) (AccountInfo, error)
	GetLeverage(ctx context.Context, marketID int) (float64, error)

	PlaceOrder(ctx context.Context, intent domain.OrderIntent) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
	// CancelAllOrders cancels every resting order, or every resting order
	// for a single market when marketID is non-nil.
	CancelAllOrders(ctx context.Context, marketID *int) error
}
