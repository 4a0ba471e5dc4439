// Package app wires the core components together for each CLI mode:
// live quoting, backtest replay, synthetic simulation, and the
// connectivity smoke test.
package app

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nkassim/perpmm/internal/backtest"
	"github.com/nkassim/perpmm/internal/cache/redis"
	"github.com/nkassim/perpmm/internal/config"
	"github.com/nkassim/perpmm/internal/domain"
	"github.com/nkassim/perpmm/internal/hedge"
	"github.com/nkassim/perpmm/internal/inventory"
	"github.com/nkassim/perpmm/internal/notify"
	"github.com/nkassim/perpmm/internal/oracle"
	"github.com/nkassim/perpmm/internal/quote"
	"github.com/nkassim/perpmm/internal/risk"
	"github.com/nkassim/perpmm/internal/simulator"
	"github.com/nkassim/perpmm/internal/sizer"
	"github.com/nkassim/perpmm/internal/spread"
	"github.com/nkassim/perpmm/internal/store/postgres"
	"github.com/nkassim/perpmm/internal/venue"
)

// App bundles the wired core components for one run.
type App struct {
	cfg    *config.Config
	env    *config.RuntimeEnv
	logger *slog.Logger
}

// New creates an App from a validated config and runtime environment.
func New(cfg *config.Config, env *config.RuntimeEnv, logger *slog.Logger) *App {
	return &App{cfg: cfg, env: env, logger: logger}
}

func defaultMarkets() []domain.Market {
	return []domain.Market{
		{ID: 1, Symbol: "BTC-PERP", TickSize: 0.1, MinSize: 0.001, MaxLeverage: 20},
		{ID: 2, Symbol: "ETH-PERP", TickSize: 0.01, MinSize: 0.01, MaxLeverage: 20},
	}
}

func (a *App) buildSDK(paper bool, startBalance float64) venue.SDK {
	if paper {
		return venue.NewPaper(defaultMarkets(), startBalance)
	}
	return venue.NewClient(a.env.RPCEndpoint, a.env.WebServerURL, a.env.PrivateKeyBase58, a.logger)
}

// buildPriceCache constructs a Redis-backed domain.PriceCache when the
// oracle is configured to use one, along with a closer the caller must defer.
// It falls back to (nil, noop) (the oracle's in-process cache) when Redis is
// disabled or unreachable.
func (a *App) buildPriceCache(ctx context.Context) (domain.PriceCache, func()) {
	noop := func() {}
	if a.cfg.Oracle.CacheBackend != "redis" {
		return nil, noop
	}
	client, err := redis.New(ctx, redis.ClientConfig{Addr: a.cfg.Oracle.RedisAddr})
	if err != nil {
		a.logger.WarnContext(ctx, "redis cache unavailable, falling back to the in-process oracle cache",
			slog.String("error", err.Error()))
		return nil, noop
	}
	return redis.NewPriceCache(client), func() { _ = client.Close() }
}

// buildNotifier assembles a notify.Notifier from the configured channels.
// Channels with no credentials set are skipped; if none are configured the
// notifier has zero senders and silently no-ops.
func (a *App) buildNotifier() *notify.Notifier {
	var senders []notify.Sender
	if a.cfg.Notify.TelegramToken != "" && a.cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(a.cfg.Notify.TelegramToken, a.cfg.Notify.TelegramChatID))
	}
	if a.cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(a.cfg.Notify.DiscordWebhookURL))
	}
	return notify.NewNotifier(senders, a.cfg.Notify.Events, a.logger)
}

// buildRunStore connects to the optional Postgres run-history store and
// applies its migrations. The returned close func is always safe to call,
// even when persistence is disabled (it is then a no-op).
func (a *App) buildRunStore(ctx context.Context) (domain.RunStore, func(), error) {
	noop := func() {}
	if !a.cfg.Store.Enabled {
		return nil, noop, nil
	}

	client, err := postgres.New(ctx, postgres.ClientConfig{
		Host:     a.cfg.Store.Host,
		Port:     a.cfg.Store.Port,
		Database: a.cfg.Store.Database,
		User:     a.cfg.Store.User,
		Password: a.cfg.Store.Password,
		SSLMode:  a.cfg.Store.SSLMode,
		MaxConns: a.cfg.Store.MaxConns,
		MinConns: a.cfg.Store.MinConns,
	})
	if err != nil {
		return nil, noop, fmt.Errorf("app: connect run store: %w", err)
	}
	if err := client.RunMigrations(ctx); err != nil {
		client.Close()
		return nil, noop, fmt.Errorf("app: run store migrations: %w", err)
	}
	return postgres.NewRunStore(client.Pool()), client.Close, nil
}

// persistRun saves a completed backtest/simulation run to the optional run
// store. Persistence failures are logged, not returned: the JSON/CSV export
// the CLI always performs is the run's authoritative output either way.
func (a *App) persistRun(ctx context.Context, kind string, startedAt time.Time, numBars int, result domain.BacktestResult) {
	if !a.cfg.Store.Enabled {
		return
	}

	store, closeStore, err := a.buildRunStore(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "run store unavailable, skipping persistence", slog.String("error", err.Error()))
		return
	}
	defer closeStore()

	run := domain.BacktestRun{
		ID:        uuid.NewString(),
		Kind:      kind,
		StartedAt: startedAt,
		EndedAt:   time.Now(),
		NumBars:   numBars,
		Result:    result,
	}
	if err := store.SaveRun(ctx, run); err != nil {
		a.logger.WarnContext(ctx, "save run failed", slog.String("error", err.Error()))
	}
}

// RunLive starts the live QuoteEngine and blocks until ctx is cancelled.
// marketIDs restricts quoting to that set of markets; nil or empty means
// every market the venue reports.
func (a *App) RunLive(ctx context.Context, marketIDs []int, paper bool) error {
	gate := risk.New(a.cfg.Risk, a.logger)
	spreadEngine := spread.New(a.cfg.Spread)
	sz := sizer.New(*a.cfg)
	shaper := inventory.New(*a.cfg, gate)

	var priceOracle *oracle.Oracle
	if a.cfg.Oracle.Enabled {
		priceCache, closeCache := a.buildPriceCache(ctx)
		defer closeCache()
		priceOracle = oracle.New(a.cfg.Oracle, priceCache, a.logger)
	}

	var sdk venue.SDK = a.buildSDK(paper, 10_000)
	if len(marketIDs) > 0 {
		sdk = &marketFilterSDK{SDK: sdk, marketIDs: marketIDs}
	}
	hedger := hedge.New(sdk.User(), a.logger)
	notifier := a.buildNotifier()

	engine := quote.New(*a.cfg, sdk, gate, spreadEngine, sz, shaper, hedger, priceOracle, notifier, a.logger)

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("app: start quote engine: %w", err)
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	engine.Shutdown(shutdownCtx)
	return ctx.Err()
}

// BacktestOptions configures RunBacktest.
type BacktestOptions struct {
	DataFile   string
	Steps      int
	OutputFile string
}

// RunBacktest replays historical or synthetic bars through the
// BacktestEngine and writes the result to OutputFile (or stdout).
func (a *App) RunBacktest(ctx context.Context, opts BacktestOptions) error {
	startedAt := time.Now()
	market := domain.Market{ID: 1, Symbol: "BTC-PERP", TickSize: 0.1, MinSize: 0.001, MaxLeverage: 20}

	var bars []domain.HistoricalBar
	var err error
	if opts.DataFile != "" {
		bars, err = loadBarsFile(opts.DataFile)
		if err != nil {
			return fmt.Errorf("app: load bars: %w", err)
		}
	} else {
		steps := opts.Steps
		if steps <= 0 {
			steps = 1000
		}
		gen := simulator.NewGenerator(simulator.DefaultParams(), simulator.ScenarioNone, simulator.DefaultRand())
		bars = gen.Generate(steps, 50_000, time.Now())
	}

	spreadEngine := spread.New(a.cfg.Spread)
	engine := backtest.New(*a.cfg, spreadEngine, backtest.NewRand(1))
	result, equity := engine.Run(bars, market)

	a.persistRun(ctx, "backtest", startedAt, len(bars), result)
	return writeBacktestResult(opts.OutputFile, result, equity)
}

// SimulateOptions configures RunSimulate.
type SimulateOptions struct {
	Steps      int
	Scenario   simulator.Scenario
	OutputFile string
}

// RunSimulate generates a synthetic bar stream and replays it through the
// BacktestEngine, the same way RunBacktest does for real data.
func (a *App) RunSimulate(ctx context.Context, opts SimulateOptions) error {
	startedAt := time.Now()
	steps := opts.Steps
	if steps <= 0 {
		steps = 10_000
	}
	market := domain.Market{ID: 1, Symbol: "BTC-PERP", TickSize: 0.1, MinSize: 0.001, MaxLeverage: 20}

	gen := simulator.NewGenerator(simulator.DefaultParams(), opts.Scenario, simulator.DefaultRand())
	bars := gen.Generate(steps, 50_000, time.Now())

	spreadEngine := spread.New(a.cfg.Spread)
	engine := backtest.New(*a.cfg, spreadEngine, backtest.NewRand(1))
	result, equity := engine.Run(bars, market)

	a.persistRun(ctx, "simulate", startedAt, len(bars), result)
	return writeBacktestResult(opts.OutputFile, result, equity)
}

// RunTest exercises configuration, credential, and venue connectivity
// checks without placing any orders.
func (a *App) RunTest(ctx context.Context) error {
	a.logger.Info("config valid")

	if a.env.PrivateKeyBase58 == "" {
		return fmt.Errorf("app: PRIVATE_KEY_BASE58 not set")
	}
	a.logger.Info("credentials present")

	sdk := venue.NewClient(a.env.RPCEndpoint, a.env.WebServerURL, a.env.PrivateKeyBase58, a.logger)
	markets, err := sdk.GetAllMarkets(ctx)
	if err != nil {
		return fmt.Errorf("app: venue connectivity check failed: %w", err)
	}
	a.logger.Info("venue reachable", slog.Int("markets", len(markets)))
	return nil
}

type backtestExport struct {
	Summary     domain.BacktestResult `json:"summary"`
	Equity      []domain.EquityPoint  `json:"equity"`
	GeneratedAt time.Time             `json:"generatedAt"`
}

// writeBacktestResult writes the summary plus the full equity curve to
// outputFile (or stdout when empty). A ".csv" suffix writes the equity
// series as timestamp,equity rows instead of the JSON export.
func writeBacktestResult(outputFile string, result domain.BacktestResult, equity []domain.EquityPoint) error {
	if hasSuffix(outputFile, ".csv") {
		return writeEquityCSV(outputFile, equity)
	}

	export := backtestExport{Summary: result, Equity: equity, GeneratedAt: time.Now()}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("app: marshal backtest result: %w", err)
	}

	if outputFile == "" {
		fmt.Println(string(data))
		return nil
	}
	return os.WriteFile(outputFile, data, 0o644)
}

// writeEquityCSV writes the equity curve as a header row plus one row per
// sample: timestamp,equity.
func writeEquityCSV(outputFile string, equity []domain.EquityPoint) error {
	f, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("app: create %s: %w", outputFile, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"timestamp", "equity"}); err != nil {
		return fmt.Errorf("app: write csv header: %w", err)
	}
	for _, pt := range equity {
		row := []string{
			strconv.FormatInt(pt.Timestamp, 10),
			strconv.FormatFloat(pt.Equity, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("app: write csv row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func loadBarsFile(path string) ([]domain.HistoricalBar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if hasSuffix(path, ".csv") {
		return simulator.LoadCSV(f)
	}
	return simulator.LoadJSON(f)
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

// marketFilterSDK restricts GetAllMarkets to a fixed set of market ids, for
// `live -m` (a single market) and for cluster workers (`MARKETS` env var).
type marketFilterSDK struct {
	venue.SDK
	marketIDs []int
}

func (s *marketFilterSDK) GetAllMarkets(ctx context.Context) ([]domain.Market, error) {
	all, err := s.SDK.GetAllMarkets(ctx)
	if err != nil {
		return nil, err
	}
	wanted := make(map[int]bool, len(s.marketIDs))
	for _, id := range s.marketIDs {
		wanted[id] = true
	}
	filtered := make([]domain.Market, 0, len(s.marketIDs))
	for _, m := range all {
		if wanted[m.ID] {
			filtered = append(filtered, m)
		}
	}
	if len(filtered) == 0 {
		return nil, fmt.Errorf("app: none of the requested markets %v were found", s.marketIDs)
	}
	return filtered, nil
}
