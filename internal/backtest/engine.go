// Package backtest implements the BacktestEngine: a synthetic-fill replay
// of historical bars through the same spread-sizing pipeline as live
// quoting, producing a BacktestResult with standard trading metrics.
package backtest

import (
	"math"
	"time"

	"github.com/nkassim/perpmm/internal/config"
	"github.com/nkassim/perpmm/internal/domain"
	"github.com/nkassim/perpmm/internal/spread"
)

const (
	defaultStartBalance = 10_000.0
	orderMaxAge         = 60 * time.Second
	fillProbHit         = 0.8
	fillProbNear        = 0.3
	fillProbFar         = 0.05
)

// Engine implements the BacktestEngine component (C9).
type Engine struct {
	cfg          config.Config
	spreadEngine *spread.Engine
	rand         Rand
}

// New creates an Engine. rand drives the fill-probability draw; pass a
// seeded Rand for reproducible runs.
func New(cfg config.Config, spreadEngine *spread.Engine, rnd Rand) *Engine {
	return &Engine{cfg: cfg, spreadEngine: spreadEngine, rand: rnd}
}

type runState struct {
	balance      float64
	position     domain.Position
	openOrders   []domain.RestingOrder
	filledOrders []domain.RestingOrder
	equity       []domain.EquityPoint
	numPlaced    int
}

// Run replays bars for a single market and returns the resulting metrics
// along with the equity curve sampled once per bar (spec §6's export
// equity series).
func (e *Engine) Run(bars []domain.HistoricalBar, market domain.Market) (domain.BacktestResult, []domain.EquityPoint) {
	startBalance := defaultStartBalance
	st := &runState{
		balance:  startBalance,
		position: domain.Position{MarketID: market.ID},
	}

	for _, bar := range bars {
		e.sweepFills(st, bar)
		e.cancelAged(st, bar)
		e.markToMarket(st, bar)
		e.placeQuotes(st, bar, market)

		st.equity = append(st.equity, domain.EquityPoint{
			Timestamp: bar.Timestamp.UnixMilli(),
			Equity:    st.balance + st.position.UnrealizedPnL,
		})
	}

	return e.computeMetrics(st, startBalance), st.equity
}

func fillProbability(order domain.RestingOrder, bar domain.HistoricalBar) float64 {
	if order.Side == domain.SideBid {
		switch {
		case bar.Low <= order.Price:
			return fillProbHit
		case bar.Close < order.Price:
			return fillProbNear
		default:
			return fillProbFar
		}
	}
	switch {
	case bar.High >= order.Price:
		return fillProbHit
	case bar.Close > order.Price:
		return fillProbNear
	default:
		return fillProbFar
	}
}

func (e *Engine) sweepFills(st *runState, bar domain.HistoricalBar) {
	remaining := st.openOrders[:0]
	for _, order := range st.openOrders {
		p := fillProbability(order, bar)
		if e.rand.Float64() < p {
			order.Filled = true
			order.FilledAt = bar.Timestamp
			order.FilledPrice = order.Price
			updatePosition(&st.position, &st.balance, order.Side, order.Size, order.Price)
			st.filledOrders = append(st.filledOrders, order)
			continue
		}
		remaining = append(remaining, order)
	}
	st.openOrders = remaining
}

func updatePosition(pos *domain.Position, balance *float64, side domain.Side, size, price float64) {
	delta := size
	if side == domain.SideAsk {
		delta = -size
	}
	oldSize := pos.Size
	newSize := oldSize + delta
	entry := pos.EntryPrice

	sOld := signOf(oldSize)
	sDelta := signOf(delta)
	if sOld != 0 && sDelta != 0 && sOld*sDelta < 0 {
		closed := math.Min(absFloat(oldSize), absFloat(delta))
		var realized float64
		if oldSize > 0 {
			realized = closed * (price - entry)
		} else {
			realized = closed * (entry - price)
		}
		*balance += realized
	}

	switch {
	case newSize == 0:
		entry = 0
	case sOld != 0 && signOf(newSize) != 0 && sOld != signOf(newSize):
		entry = price
	case sOld == 0 || sOld == sDelta:
		entry = (oldSize*entry + delta*price) / newSize
	}

	pos.Size = newSize
	pos.EntryPrice = entry
}

func (e *Engine) cancelAged(st *runState, bar domain.HistoricalBar) {
	remaining := st.openOrders[:0]
	for _, order := range st.openOrders {
		if bar.Timestamp.Sub(order.PlacedAt) > orderMaxAge {
			continue
		}
		remaining = append(remaining, order)
	}
	st.openOrders = remaining
}

func (e *Engine) markToMarket(st *runState, bar domain.HistoricalBar) {
	switch {
	case st.position.Size > 0:
		st.position.UnrealizedPnL = st.position.Size * (bar.Close - st.position.EntryPrice)
	case st.position.Size < 0:
		st.position.UnrealizedPnL = -st.position.Size * (st.position.EntryPrice - bar.Close)
	default:
		st.position.UnrealizedPnL = 0
	}
}

func (e *Engine) placeQuotes(st *runState, bar domain.HistoricalBar, market domain.Market) {
	mid := bar.Close
	book := domain.OrderbookSnapshot{
		MarketID:  market.ID,
		Timestamp: bar.Timestamp,
		Bids:      []domain.PriceLevel{{Price: mid * 0.999, Size: bar.BidDepth}},
		Asks:      []domain.PriceLevel{{Price: mid * 1.001, Size: bar.AskDepth}},
	}
	result := e.spreadEngine.DynamicSpread(book)

	levels := e.cfg.MaxLevels
	for i := 0; i < levels; i++ {
		spacing := result.Spread * float64(i+1) * 0.5
		bidPrice := mid * (1 - spacing)
		askPrice := mid * (1 + spacing)

		st.openOrders = append(st.openOrders,
			domain.RestingOrder{MarketID: market.ID, Side: domain.SideBid, Price: bidPrice, Size: e.cfg.FixedSize, PlacedAt: bar.Timestamp},
			domain.RestingOrder{MarketID: market.ID, Side: domain.SideAsk, Price: askPrice, Size: e.cfg.FixedSize, PlacedAt: bar.Timestamp},
		)
		st.numPlaced += 2
	}
}

func (e *Engine) computeMetrics(st *runState, startBalance float64) domain.BacktestResult {
	endEquity := startBalance
	if len(st.equity) > 0 {
		endEquity = st.equity[len(st.equity)-1].Equity
	}

	result := domain.BacktestResult{
		StartBalance: startBalance,
		EndBalance:   st.balance,
		TotalPnL:     endEquity - startBalance,
	}

	var totalVolume float64
	for _, o := range st.filledOrders {
		totalVolume += o.Size * o.FilledPrice
	}
	result.TotalVolume = totalVolume
	if st.numPlaced > 0 {
		result.FillRate = float64(len(st.filledOrders)) / float64(st.numPlaced)
	}

	var pnls []float64
	var spreads []float64
	for i := 1; i < len(st.filledOrders); i++ {
		prev, cur := st.filledOrders[i-1], st.filledOrders[i]
		if prev.Side == cur.Side {
			continue
		}
		var tradePnl float64
		if prev.Side == domain.SideBid {
			tradePnl = prev.Size * (cur.FilledPrice - prev.FilledPrice)
		} else {
			tradePnl = prev.Size * (prev.FilledPrice - cur.FilledPrice)
		}
		pnls = append(pnls, tradePnl)
		if prev.FilledPrice != 0 {
			spreads = append(spreads, absFloat(cur.FilledPrice-prev.FilledPrice)/prev.FilledPrice)
		}
	}

	result.NumTrades = len(pnls)
	var sumWins, sumAbsLosses float64
	for _, pnl := range pnls {
		switch {
		case pnl > 0:
			result.NumWins++
			sumWins += pnl
			if pnl > result.LargestWin {
				result.LargestWin = pnl
			}
		case pnl < 0:
			result.NumLosses++
			sumAbsLosses += -pnl
			if -pnl > result.LargestLoss {
				result.LargestLoss = -pnl
			}
		}
	}
	if result.NumTrades > 0 {
		result.WinRate = float64(result.NumWins) / float64(result.NumTrades)
	}
	if result.NumWins > 0 {
		result.AvgWin = sumWins / float64(result.NumWins)
	}
	if result.NumLosses > 0 {
		result.AvgLoss = sumAbsLosses / float64(result.NumLosses)
	}
	if sumAbsLosses > 0 {
		result.ProfitFactor = sumWins / sumAbsLosses
	}
	if len(spreads) > 0 {
		var sum float64
		for _, s := range spreads {
			sum += s
		}
		result.AvgSpread = sum / float64(len(spreads))
	}

	result.SharpeRatio = sharpeRatio(st.equity)
	result.MaxDrawdown, result.AvgDrawdown, result.MaxDDDuration = drawdownStats(st.equity)
	if result.MaxDrawdown > 0 && startBalance > 0 {
		totalReturn := (endEquity - startBalance) / startBalance
		result.CalmarRatio = totalReturn / result.MaxDrawdown
	}

	return result
}

func sharpeRatio(equity []domain.EquityPoint) float64 {
	if len(equity) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (equity[i].Equity-prev)/prev)
	}
	if len(returns) == 0 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	stddev := math.Sqrt(variance)
	if stddev == 0 {
		return 0
	}
	return (mean / stddev) * math.Sqrt(252)
}

func drawdownStats(equity []domain.EquityPoint) (maxDD, avgDD float64, maxDuration int) {
	if len(equity) == 0 {
		return 0, 0, 0
	}
	peak := equity[0].Equity
	var intervalMax float64
	var duration int
	var intervalMaxes []float64

	closeInterval := func() {
		if duration > 0 {
			intervalMaxes = append(intervalMaxes, intervalMax)
			if duration > maxDuration {
				maxDuration = duration
			}
		}
		duration = 0
		intervalMax = 0
	}

	for _, pt := range equity {
		if pt.Equity > peak {
			peak = pt.Equity
			closeInterval()
			continue
		}
		if peak == 0 {
			continue
		}
		dd := (peak - pt.Equity) / peak
		if dd > maxDD {
			maxDD = dd
		}
		if dd > intervalMax {
			intervalMax = dd
		}
		duration++
	}
	closeInterval()

	if len(intervalMaxes) > 0 {
		var sum float64
		for _, d := range intervalMaxes {
			sum += d
		}
		avgDD = sum / float64(len(intervalMaxes))
	}
	return maxDD, avgDD, maxDuration
}

func signOf(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
