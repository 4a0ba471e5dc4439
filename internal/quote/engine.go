// Package quote implements the QuoteEngine: the live orchestrator that
// drives RiskGate, SpreadEngine, InventoryShaper, Sizer, and HedgeExecutor
// off every orderbook event.
package quote

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/nkassim/perpmm/internal/config"
	"github.com/nkassim/perpmm/internal/domain"
	"github.com/nkassim/perpmm/internal/hedge"
	"github.com/nkassim/perpmm/internal/inventory"
	"github.com/nkassim/perpmm/internal/notify"
	"github.com/nkassim/perpmm/internal/oracle"
	"github.com/nkassim/perpmm/internal/risk"
	"github.com/nkassim/perpmm/internal/sizer"
	"github.com/nkassim/perpmm/internal/spread"
	"github.com/nkassim/perpmm/internal/venue"
)

// denyStreakAlertThreshold is the number of consecutive risk denials on a
// market before the notifier fires a risk_denied_streak alert.
const denyStreakAlertThreshold = 5

// State is a market's position in the quoting state machine:
//
//	Unsubscribed -> Subscribed(NoQuote) -> Subscribed(Quoting) <-> Subscribed(Suppressed) -> Unsubscribed
type State int

const (
	StateUnsubscribed State = iota
	StateNoQuote
	StateQuoting
	StateSuppressed
)

func (s State) String() string {
	switch s {
	case StateUnsubscribed:
		return "unsubscribed"
	case StateNoQuote:
		return "no_quote"
	case StateQuoting:
		return "quoting"
	case StateSuppressed:
		return "suppressed"
	default:
		return "unknown"
	}
}

type marketState struct {
	mu            sync.Mutex
	market        domain.Market
	state         State
	lastQuote     *domain.LastQuotePrices
	currentQuotes domain.QuoteLadder
	denyStreak    int
}

// Engine implements the QuoteEngine component (C8).
type Engine struct {
	cfg      config.Config
	sdk      venue.SDK
	risk     *risk.Gate
	spread   *spread.Engine
	sizer    *sizer.Sizer
	shaper   *inventory.Shaper
	hedger   *hedge.Executor
	oracle   *oracle.Oracle
	notifier *notify.Notifier
	logger   *slog.Logger

	mu       sync.Mutex
	markets  map[int]*marketState
	account  venue.AccountInfo
	leverage map[int]float64

	cancel context.CancelFunc
}

// New wires the orchestrator to its dependencies.
func New(
	cfg config.Config,
	sdk venue.SDK,
	gate *risk.Gate,
	spreadEngine *spread.Engine,
	sz *sizer.Sizer,
	shaper *inventory.Shaper,
	hedger *hedge.Executor,
	priceOracle *oracle.Oracle,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		cfg:      cfg,
		sdk:      sdk,
		risk:     gate,
		spread:   spreadEngine,
		sizer:    sz,
		shaper:   shaper,
		hedger:   hedger,
		oracle:   priceOracle,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "quote")),
		markets:  make(map[int]*marketState),
		leverage: make(map[int]float64),
	}
}

// Start loads markets, starts the price oracle, subscribes to every
// market's orderbook, and registers the event handler.
func (e *Engine) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	markets, err := e.sdk.GetAllMarkets(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("quote: get all markets: %w", err)
	}

	symbols := make([]string, 0, len(markets))
	e.mu.Lock()
	for _, m := range markets {
		e.markets[m.ID] = &marketState{market: m, state: StateNoQuote}
		symbols = append(symbols, m.BaseSymbol())
	}
	e.mu.Unlock()

	if e.cfg.Oracle.Enabled && e.oracle != nil {
		e.oracle.StartUpdates(runCtx, symbols)
	}

	e.sdk.OnOrderbookUpdate(e.onOrderbook)
	for _, m := range markets {
		if err := e.sdk.SubscribeOrderbook(runCtx, m.ID); err != nil {
			e.logger.ErrorContext(runCtx, "subscribe failed", slog.Int("market_id", m.ID), slog.String("error", err.Error()))
		}
	}

	e.refreshAccount(runCtx)
	go e.periodicTick(runCtx)

	e.logger.InfoContext(runCtx, "quote engine started", slog.Int("markets", len(markets)))
	return nil
}

// Shutdown stops timers, stops the oracle, cancels every resting order,
// and unsubscribes every market.
func (e *Engine) Shutdown(ctx context.Context) {
	if e.cancel != nil {
		e.cancel()
	}
	if e.oracle != nil {
		e.oracle.Stop()
	}

	e.risk.EmergencyCancelAll(ctx, func(ctx context.Context) error {
		return e.sdk.User().CancelAllOrders(ctx, nil)
	})

	e.mu.Lock()
	ids := make([]int, 0, len(e.markets))
	for id := range e.markets {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		if err := e.sdk.UnsubscribeOrderbook(ctx, id); err != nil {
			e.logger.WarnContext(ctx, "unsubscribe failed", slog.Int("market_id", id), slog.String("error", err.Error()))
		}
	}
	e.logger.InfoContext(ctx, "quote engine stopped")
}

func (e *Engine) periodicTick(ctx context.Context) {
	interval := time.Duration(e.cfg.RequoteIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.refreshAccount(ctx)
		}
	}
}

func (e *Engine) refreshAccount(ctx context.Context) {
	info, err := e.sdk.User().FetchInfo(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "account refresh failed", slog.String("error", err.Error()))
		return
	}
	e.mu.Lock()
	e.account = info
	for id := range e.markets {
		if lev, err := e.sdk.User().GetLeverage(ctx, id); err == nil {
			e.leverage[id] = lev
		}
	}
	e.mu.Unlock()
}

func (e *Engine) onOrderbook(book domain.OrderbookSnapshot) {
	e.mu.Lock()
	ms, ok := e.markets[book.MarketID]
	e.mu.Unlock()
	if !ok {
		return
	}
	e.processEvent(context.Background(), ms, book)
}

func (e *Engine) suppress(ms *marketState, reason string, fields ...any) {
	ms.state = StateSuppressed
	e.logger.Debug("quote cycle suppressed", append([]any{slog.String("reason", reason)}, fields...)...)
}

// processEvent runs the 12-step pipeline for a single orderbook event.
func (e *Engine) processEvent(ctx context.Context, ms *marketState, book domain.OrderbookSnapshot) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	marketID := ms.market.ID

	// 1. health check
	if !e.spread.IsHealthy(book) {
		e.suppress(ms, "unhealthy_book", slog.Int("market_id", marketID))
		return
	}

	// 2. risk check
	e.mu.Lock()
	account := e.account
	leverage := e.leverage[marketID]
	e.mu.Unlock()
	position := account.Positions[marketID]

	var totalExposure float64
	for _, p := range account.Positions {
		totalExposure += absFloat(p.Size * p.EntryPrice)
	}

	decision := e.risk.CanQuote(ctx, marketID, risk.AccountSnapshot{
		Leverage:          leverage,
		Balance:           account.Balance,
		Position:          position,
		TotalExposureBase: totalExposure,
		TotalCollateral:   account.Balance.Total,
	})
	if !decision.Allow {
		ms.denyStreak++
		if ms.denyStreak == denyStreakAlertThreshold {
			e.notifyAsync(notify.EventRiskDeniedStreak, "risk denied streak",
				fmt.Sprintf("market %d denied %d consecutive times: %s", marketID, ms.denyStreak, decision.Denial.Reason))
		}
		e.suppress(ms, decision.Denial.Reason, slog.Int("market_id", marketID), slog.String("detail", decision.Denial.Detail))
		return
	}
	ms.denyStreak = 0

	// 3. reference price
	symbol := ms.market.BaseSymbol()
	var mid float64
	if e.cfg.Oracle.Enabled && e.oracle != nil && e.oracle.IsFresh(symbol) {
		price, ok := e.oracle.GetPrice(ctx, symbol)
		if !ok {
			e.notifyAsync(notify.EventOracleBlackout, "oracle unavailable", fmt.Sprintf("market %d: fresh cache entry missing", marketID))
			e.suppress(ms, "oracle_unavailable", slog.Int("market_id", marketID))
			return
		}
		mid = price.Mid
	} else if e.cfg.Oracle.FallbackToOrderbook {
		m, ok := e.spread.Mid(book)
		if !ok {
			e.suppress(ms, "no_reference_price", slog.Int("market_id", marketID))
			return
		}
		mid = m
	} else {
		e.suppress(ms, "no_reference_price", slog.Int("market_id", marketID))
		return
	}

	// 4. dynamic spread
	spreadResult := e.spread.DynamicSpread(book)

	// 5. inventory shaping
	shape := e.shaper.Shape(marketID, mid, spreadResult.Spread, position, account.Balance.Available)

	// 6. requote gate
	if ms.lastQuote != nil {
		bidDelta := absFloat(shape.BidPrice-ms.lastQuote.BestBid) / ms.lastQuote.BestBid
		askDelta := absFloat(shape.AskPrice-ms.lastQuote.BestAsk) / ms.lastQuote.BestAsk
		if bidDelta <= e.cfg.RequoteThreshold && askDelta <= e.cfg.RequoteThreshold {
			return
		}
	}
	ms.lastQuote = &domain.LastQuotePrices{
		MarketID:  marketID,
		BestBid:   shape.BidPrice,
		BestAsk:   shape.AskPrice,
		Timestamp: time.Now(),
	}

	// 7. cancel existing orders
	if err := e.sdk.User().CancelAllOrders(ctx, &marketID); err != nil {
		e.logger.WarnContext(ctx, "cancel all failed", slog.Int("market_id", marketID), slog.String("error", err.Error()))
	}

	// 8. sizing
	sizes := e.sizer.Sizes(account.Balance.Available)
	if len(sizes) == 0 || !e.sizer.ValidateSizes(sizes, account.Balance.Available, mid) {
		e.suppress(ms, "size_invalid", slog.Int("market_id", marketID))
		return
	}

	// 9-10. build and place ladder
	levels := e.cfg.MaxLevels
	if len(sizes) < levels {
		levels = len(sizes)
	}
	bids := make([]domain.PriceLevel, 0, levels)
	asks := make([]domain.PriceLevel, 0, levels)

	for i := 0; i < levels; i++ {
		spacing := spreadResult.Spread * float64(i+1) * 0.5
		bidPrice := roundToTick(shape.BidPrice*(1-spacing), ms.market.TickSize)
		askPrice := roundToTick(shape.AskPrice*(1+spacing), ms.market.TickSize)
		size := sizer.RoundSize(sizes[i], ms.market.MinSize, 0.01)

		bids = append(bids, domain.PriceLevel{Price: bidPrice, Size: size})
		asks = append(asks, domain.PriceLevel{Price: askPrice, Size: size})

		e.placeLevel(ctx, marketID, domain.SideBid, bidPrice, size)
		e.placeLevel(ctx, marketID, domain.SideAsk, askPrice, size)
	}

	// 11. record ladder
	ms.currentQuotes = domain.QuoteLadder{MarketID: marketID, Bids: bids, Asks: asks, Generated: time.Now()}
	ms.state = StateQuoting

	// 12. hedge if needed
	if e.shaper.NeedsHedge(marketID, position, account.Balance.Available, mid) {
		e.hedger.Hedge(ctx, marketID, position)
		e.notifyAsync(notify.EventHedgeExecuted, "hedge executed", fmt.Sprintf("market %d position %.6f hedged", marketID, position.Size))
	}
}

// notifyAsync dispatches a notification in the background so a slow sender
// never blocks the orderbook event pipeline. It is a no-op if no notifier
// was wired.
func (e *Engine) notifyAsync(event, title, message string) {
	if e.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.notifier.Notify(ctx, event, title, message); err != nil {
			e.logger.Warn("notify failed", slog.String("event", event), slog.String("error", err.Error()))
		}
	}()
}

func (e *Engine) placeLevel(ctx context.Context, marketID int, side domain.Side, price, size float64) {
	_, err := e.sdk.User().PlaceOrder(ctx, domain.OrderIntent{
		MarketID:   marketID,
		Side:       side,
		Price:      price,
		Size:       size,
		FillMode:   domain.FillModeLimit,
		ReduceOnly: false,
	})
	if err != nil {
		e.logger.WarnContext(ctx, "place order failed",
			slog.Int("market_id", marketID), slog.String("side", string(side)), slog.String("error", err.Error()))
	}
}

func roundToTick(price, tick float64) float64 {
	if tick == 0 {
		return price
	}
	return math.Round(price/tick) * tick
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
