package oracle

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nkassim/perpmm/internal/config"
	"github.com/nkassim/perpmm/internal/domain"
)

func testOracle() *Oracle {
	cfg := config.OracleConfig{
		Sources:        nil,
		CacheTimeoutMs: 5_000,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, nil, logger)
}

func TestAggregateUsesMedianBidAsk(t *testing.T) {
	quotes := []quote{
		newQuote(100, 101, 10, "a"),
		newQuote(102, 103, 20, "b"),
		newQuote(104, 105, 30, "c"),
	}
	result := aggregate(quotes)
	if result.Bid != 102 {
		t.Errorf("Bid = %v, want median 102", result.Bid)
	}
	if result.Ask != 103 {
		t.Errorf("Ask = %v, want median 103", result.Ask)
	}
	wantMid := (102.0 + 103.0) / 2
	if result.Mid != wantMid {
		t.Errorf("Mid = %v, want %v", result.Mid, wantMid)
	}
	wantVolume := (10.0 + 20.0 + 30.0) / 3
	if result.Volume24h != wantVolume {
		t.Errorf("Volume24h = %v, want %v", result.Volume24h, wantVolume)
	}
	if result.Source != "aggregated(a,b,c)" {
		t.Errorf("Source = %q, want aggregated(a,b,c)", result.Source)
	}
}

// TestAggregateMidIsMedianOfMidsNotMedianBidAskAverage covers sources whose
// bid/ask are not rank-aligned, so the median of each source's own mid
// diverges from (median bid + median ask) / 2.
func TestAggregateMidIsMedianOfMidsNotMedianBidAskAverage(t *testing.T) {
	quotes := []quote{
		newQuote(100, 102, 1, "a"), // mid 101
		newQuote(99, 105, 1, "b"),  // mid 102
		newQuote(101, 103, 1, "c"), // mid 102
	}
	result := aggregate(quotes)
	if result.Bid != 100 {
		t.Errorf("Bid = %v, want median 100", result.Bid)
	}
	if result.Ask != 103 {
		t.Errorf("Ask = %v, want median 103", result.Ask)
	}
	wantMid := 102.0 // median of the per-source mids {101, 102, 102}
	if result.Mid != wantMid {
		t.Errorf("Mid = %v, want %v (median of per-source mids, not (bid+ask)/2)", result.Mid, wantMid)
	}
	if badMid := (result.Bid + result.Ask) / 2; result.Mid == badMid {
		t.Errorf("Mid should not equal (median bid + median ask)/2 (%v) for non-aligned sources", badMid)
	}
}

func TestAggregateSingleSource(t *testing.T) {
	quotes := []quote{newQuote(50, 51, 5, "solo")}
	result := aggregate(quotes)
	if result.Bid != 50 || result.Ask != 51 {
		t.Errorf("expected the single source's quote verbatim, got bid=%v ask=%v", result.Bid, result.Ask)
	}
}

func TestStoreAndCacheLookupRoundTrip(t *testing.T) {
	o := testOracle()
	price := aggregate([]quote{newQuote(10, 11, 1, "x")})
	price.Timestamp = time.Now()

	o.store(context.Background(), "BTCUSDT", price)

	got, fresh := o.cacheLookup(context.Background(), "BTCUSDT")
	if !fresh {
		t.Fatal("expected a freshly stored entry to be considered fresh")
	}
	if got.Bid != price.Bid {
		t.Errorf("Bid = %v, want %v", got.Bid, price.Bid)
	}
}

func TestCacheLookupStaleAfterTimeout(t *testing.T) {
	o := testOracle()
	o.cfg.CacheTimeoutMs = 1
	price := aggregate([]quote{newQuote(10, 11, 1, "x")})
	price.Timestamp = time.Now().Add(-1 * time.Hour)
	o.store(context.Background(), "BTCUSDT", price)

	if _, fresh := o.cacheLookup(context.Background(), "BTCUSDT"); fresh {
		t.Fatal("expected an old entry to be considered stale")
	}
	if _, ok := o.cacheLookupStale(context.Background(), "BTCUSDT"); !ok {
		t.Fatal("expected cacheLookupStale to still return the entry regardless of age")
	}
}

func TestIsFreshReflectsCacheState(t *testing.T) {
	o := testOracle()
	if o.IsFresh("UNKNOWN") {
		t.Error("expected IsFresh to be false for a symbol never cached")
	}

	price := aggregate([]quote{newQuote(10, 11, 1, "x")})
	price.Timestamp = time.Now()
	o.store(context.Background(), "ETHUSDT", price)
	if !o.IsFresh("ETHUSDT") {
		t.Error("expected IsFresh to be true immediately after storing")
	}
}

func TestGetPriceFallsBackToStaleCacheWhenAllSourcesFail(t *testing.T) {
	o := testOracle() // no sources configured, fetchAll always returns empty
	o.cfg.CacheTimeoutMs = 1

	stale := aggregate([]quote{newQuote(10, 11, 1, "x")})
	stale.Timestamp = time.Now().Add(-1 * time.Hour)
	o.store(context.Background(), "BTCUSDT", stale)

	got, ok := o.GetPrice(context.Background(), "BTCUSDT")
	if !ok {
		t.Fatal("expected stale-cache fallback to succeed when no sources are configured")
	}
	if got.Bid != stale.Bid {
		t.Errorf("Bid = %v, want stale value %v", got.Bid, stale.Bid)
	}
}

func TestGetPriceFailsWithNoSourcesAndNoCache(t *testing.T) {
	o := testOracle()
	if _, ok := o.GetPrice(context.Background(), "NEVERCACHED"); ok {
		t.Fatal("expected GetPrice to fail with no sources and no cache entry")
	}
}

// fakeBackend is an in-memory domain.PriceCache for testing the batch warm
// path without a real Redis instance.
type fakeBackend struct {
	prices map[string]domain.PricePoint
}

func (f *fakeBackend) SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error {
	f.prices[symbol] = domain.PricePoint{Price: price, Timestamp: ts}
	return nil
}

func (f *fakeBackend) GetPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	pt, ok := f.prices[symbol]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return pt.Price, pt.Timestamp, nil
}

func (f *fakeBackend) GetPrices(ctx context.Context, symbols []string) (map[string]domain.PricePoint, error) {
	out := make(map[string]domain.PricePoint, len(symbols))
	for _, s := range symbols {
		if pt, ok := f.prices[s]; ok {
			out[s] = pt
		}
	}
	return out, nil
}

func TestWarmFromBackendSeedsLocalCacheForFreshEntries(t *testing.T) {
	backend := &fakeBackend{prices: map[string]domain.PricePoint{
		"BTCUSDT": {Price: 50_000, Timestamp: time.Now()},
		"ETHUSDT": {Price: 3_000, Timestamp: time.Now().Add(-1 * time.Hour)}, // stale
	}}
	cfg := config.OracleConfig{CacheTimeoutMs: 5_000}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := New(cfg, backend, logger)

	o.warmFromBackend(context.Background(), []string{"BTCUSDT", "ETHUSDT"})

	if !o.IsFresh("BTCUSDT") {
		t.Error("expected a fresh backend entry to warm the local cache")
	}
	if o.IsFresh("ETHUSDT") {
		t.Error("expected a stale backend entry to be skipped")
	}
}

func TestWarmFromBackendNoopWithoutBackend(t *testing.T) {
	o := testOracle() // backend is nil
	o.warmFromBackend(context.Background(), []string{"BTCUSDT"})
	if o.IsFresh("BTCUSDT") {
		t.Error("expected no-op when no backend is configured")
	}
}
