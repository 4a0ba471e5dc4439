// Package oracle implements the PriceOracle: multi-source reference price
// aggregation with median combination, TTL caching, and a periodic
// refresher.
package oracle

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nkassim/perpmm/internal/config"
	"github.com/nkassim/perpmm/internal/domain"
)

type cacheEntry struct {
	price domain.ExchangePrice
}

// Oracle implements the PriceOracle component (C6).
type Oracle struct {
	cfg     config.OracleConfig
	sources []source
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	backend domain.PriceCache // optional distributed cache; nil means local-only

	mu    sync.RWMutex
	local map[string]cacheEntry

	stopOnce sync.Once
	cancel   context.CancelFunc
}

// New creates an Oracle. backend may be nil, in which case the oracle
// caches in-process only.
func New(cfg config.OracleConfig, backend domain.PriceCache, logger *slog.Logger) *Oracle {
	var limiter *rate.Limiter
	if cfg.RateLimitPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), int(cfg.RateLimitPerSecond)+1)
	}
	return &Oracle{
		cfg:     cfg,
		sources: sources(cfg.Sources),
		client:  &http.Client{Timeout: sourceTimeout},
		limiter: limiter,
		logger:  logger.With(slog.String("component", "oracle")),
		backend: backend,
		local:   make(map[string]cacheEntry),
	}
}

func (o *Oracle) cacheTimeout() time.Duration {
	return time.Duration(o.cfg.CacheTimeoutMs) * time.Millisecond
}

// GetPrice returns the current aggregated price for symbol, per spec.md
// §4.6: cache hit within cacheTimeout short-circuits; otherwise it queries
// every configured source concurrently and aggregates by median.
func (o *Oracle) GetPrice(ctx context.Context, symbol string) (domain.ExchangePrice, bool) {
	if entry, fresh := o.cacheLookup(ctx, symbol); fresh {
		return entry, true
	}

	quotes := o.fetchAll(ctx, symbol)
	if len(quotes) == 0 {
		if entry, ok := o.cacheLookupStale(ctx, symbol); ok {
			return entry, true
		}
		return domain.ExchangePrice{}, false
	}

	aggregated := aggregate(quotes)
	o.store(ctx, symbol, aggregated)
	return aggregated, true
}

func (o *Oracle) fetchAll(ctx context.Context, symbol string) []quote {
	results := make([]quote, len(o.sources))
	ok := make([]bool, len(o.sources))

	group, gctx := errgroup.WithContext(ctx)
	for i, src := range o.sources {
		i, src := i, src
		group.Go(func() error {
			if o.limiter != nil {
				if err := o.limiter.Wait(gctx); err != nil {
					return nil
				}
			}
			fetchCtx, cancel := context.WithTimeout(ctx, sourceTimeout)
			defer cancel()
			q, err := src.fetch(fetchCtx, o.client, symbol)
			if err != nil {
				o.logger.Warn("source fetch failed",
					slog.String("source", src.name()),
					slog.String("symbol", symbol),
					slog.String("error", err.Error()))
				return nil
			}
			results[i] = q
			ok[i] = true
			return nil
		})
	}
	_ = group.Wait()

	out := make([]quote, 0, len(results))
	for i, present := range ok {
		if present {
			out = append(out, results[i])
		}
	}
	return out
}

func aggregate(quotes []quote) domain.ExchangePrice {
	bids := make([]float64, len(quotes))
	asks := make([]float64, len(quotes))
	mids := make([]float64, len(quotes))
	var volumeSum float64
	names := make([]string, len(quotes))
	for i, q := range quotes {
		bids[i] = q.bid
		asks[i] = q.ask
		mids[i] = q.mid
		volumeSum += q.volume24h
		names[i] = q.source
	}
	sort.Float64s(bids)
	sort.Float64s(asks)
	sort.Float64s(mids)
	sort.Strings(names)

	median := func(sorted []float64) float64 {
		return sorted[len(sorted)/2]
	}

	bid := median(bids)
	ask := median(asks)
	mid := median(mids)

	var spread float64
	if mid != 0 {
		spread = (ask - bid) / mid
	}

	return domain.ExchangePrice{
		Bid:       bid,
		Ask:       ask,
		Mid:       mid,
		Spread:    spread,
		Volume24h: volumeSum / float64(len(quotes)),
		Timestamp: time.Now(),
		Source:    "aggregated(" + strings.Join(names, ",") + ")",
	}
}

func (o *Oracle) cacheLookup(ctx context.Context, symbol string) (domain.ExchangePrice, bool) {
	entry, ok := o.cacheLookupStale(ctx, symbol)
	if !ok {
		return domain.ExchangePrice{}, false
	}
	if time.Since(entry.Timestamp) < o.cacheTimeout() {
		return entry, true
	}
	return domain.ExchangePrice{}, false
}

func (o *Oracle) cacheLookupStale(ctx context.Context, symbol string) (domain.ExchangePrice, bool) {
	o.mu.RLock()
	entry, ok := o.local[symbol]
	o.mu.RUnlock()
	if ok {
		return entry.price, true
	}

	if o.backend == nil {
		return domain.ExchangePrice{}, false
	}
	price, ts, err := o.backend.GetPrice(ctx, symbol)
	if err != nil || ts.IsZero() {
		return domain.ExchangePrice{}, false
	}
	return domain.ExchangePrice{Mid: price, Timestamp: ts, Source: "cache"}, true
}

func (o *Oracle) store(ctx context.Context, symbol string, price domain.ExchangePrice) {
	o.mu.Lock()
	o.local[symbol] = cacheEntry{price: price}
	o.mu.Unlock()

	if o.backend != nil {
		if err := o.backend.SetPrice(ctx, symbol, price.Mid, price.Timestamp); err != nil {
			o.logger.Warn("distributed cache write failed", slog.String("symbol", symbol), slog.String("error", err.Error()))
		}
	}
}

// IsFresh reports whether symbol's cache entry is within cacheTimeout.
func (o *Oracle) IsFresh(symbol string) bool {
	o.mu.RLock()
	entry, ok := o.local[symbol]
	o.mu.RUnlock()
	if !ok {
		return false
	}
	return time.Since(entry.price.Timestamp) < o.cacheTimeout()
}

// warmFromBackend seeds the in-process cache from a single pipelined
// distributed-cache read, so a periodic refresh does not issue one backend
// round trip per symbol when another oracle instance (e.g. a sibling
// cluster worker) already populated the shared cache.
func (o *Oracle) warmFromBackend(ctx context.Context, symbols []string) {
	if o.backend == nil {
		return
	}
	points, err := o.backend.GetPrices(ctx, symbols)
	if err != nil {
		o.logger.Warn("distributed cache batch read failed", slog.String("error", err.Error()))
		return
	}
	o.mu.Lock()
	for symbol, pt := range points {
		if time.Since(pt.Timestamp) < o.cacheTimeout() {
			o.local[symbol] = cacheEntry{price: domain.ExchangePrice{Mid: pt.Price, Timestamp: pt.Timestamp, Source: "cache"}}
		}
	}
	o.mu.Unlock()
}

// StartUpdates schedules GetPrice for every symbol every updateInterval,
// plus one immediate fetch, until ctx is cancelled or Stop is called.
func (o *Oracle) StartUpdates(ctx context.Context, symbols []string) {
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	refresh := func() {
		o.warmFromBackend(ctx, symbols)
		for _, symbol := range symbols {
			if _, ok := o.GetPrice(ctx, symbol); !ok {
				o.logger.Warn("oracle refresh failed for all sources", slog.String("symbol", symbol))
			}
		}
	}
	refresh()

	go func() {
		ticker := time.NewTicker(o.cfg.UpdateInterval.Duration)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				refresh()
			}
		}
	}()
}

// Stop cancels the background refresh scheduler.
func (o *Oracle) Stop() {
	o.stopOnce.Do(func() {
		if o.cancel != nil {
			o.cancel()
		}
	})
}
