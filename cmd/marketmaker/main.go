// Command marketmaker is the entry point for the perpetual-futures
// market-making engine. It loads configuration, validates it, wires
// dependencies, sets up signal handling, and runs one of the live,
// backtest, simulate, or test subcommands.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nkassim/perpmm/internal/app"
	"github.com/nkassim/perpmm/internal/cluster"
	"github.com/nkassim/perpmm/internal/config"
	"github.com/nkassim/perpmm/internal/logging"
	"github.com/nkassim/perpmm/internal/simulator"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, env, configPath, logger, err := bootstrap()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	application := app.New(cfg, env, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "live":
		runLive(ctx, application, cfg, env, configPath, logger)
	case "backtest":
		runBacktest(ctx, application, logger)
	case "simulate":
		runSimulate(ctx, application, logger)
	case "test":
		runTest(ctx, application, logger)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: marketmaker <live|backtest|simulate|test> [flags]")
}

func bootstrap() (*config.Config, *config.RuntimeEnv, string, *slog.Logger, error) {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	flag.CommandLine.Parse(os.Args[2:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, nil, "", nil, fmt.Errorf("load config %s: %w", *configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, "", nil, fmt.Errorf("invalid configuration: %w", err)
	}

	env, err := config.LoadRuntimeEnv()
	if err != nil {
		return nil, nil, "", nil, fmt.Errorf("load runtime environment: %w", err)
	}
	if cfg.LogLevel != "" {
		env.LogLevel = cfg.LogLevel
	}

	logger := logging.New(logging.Options{
		Level:   parseLevel(env.LogLevel),
		ToFiles: true,
		LogDir:  "logs",
	})
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("path", *configPath))
	return cfg, env, *configPath, logger, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runLive(ctx context.Context, a *app.App, cfg *config.Config, env *config.RuntimeEnv, configPath string, logger *slog.Logger) {
	fs := flag.NewFlagSet("live", flag.ExitOnError)
	marketID := fs.Int("m", 0, "restrict quoting to a single market id")
	test := fs.Bool("t", false, "use the in-memory paper venue instead of a live connection")
	fs.BoolVar(test, "test", false, "alias for -t")
	fs.Parse(os.Args[2:])

	// A cluster-enabled process that isn't already a worker becomes the
	// supervisor: it never quotes itself, only forks and watches workers.
	if cfg.Cluster.Enabled && !env.IsWorker {
		supervisor := cluster.NewSupervisor(os.Args[0], configPath, cfg.Cluster, logger)
		if err := supervisor.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("cluster supervisor failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("cluster supervisor shut down")
		return
	}

	var marketIDs []int
	switch {
	case env.IsWorker:
		marketIDs = env.Markets
	case *marketID != 0:
		marketIDs = []int{*marketID}
	}

	runCtx := ctx
	var worker *cluster.Worker
	if env.IsWorker {
		worker = cluster.NewWorker(env.WorkerID, os.Stdout, logger)
		var cancel context.CancelFunc
		runCtx, cancel = context.WithCancel(ctx)
		defer cancel()
		go worker.Listen(runCtx, os.Stdin, cancel)
	}

	err := a.RunLive(runCtx, marketIDs, *test)
	if err != nil && err != context.Canceled {
		if worker != nil {
			worker.ReportError(err)
		}
		logger.Error("live run failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("shut down gracefully")
}

func runBacktest(ctx context.Context, a *app.App, logger *slog.Logger) {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	dataFile := fs.String("d", "", "historical bar file (.json or .csv)")
	steps := fs.Int("s", 1000, "number of synthetic bars when -d is absent")
	out := fs.String("o", "", "output file for the backtest result (stdout if empty)")
	fs.Parse(os.Args[2:])

	err := a.RunBacktest(ctx, app.BacktestOptions{DataFile: *dataFile, Steps: *steps, OutputFile: *out})
	if err != nil {
		logger.Error("backtest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func runSimulate(ctx context.Context, a *app.App, logger *slog.Logger) {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	steps := fs.Int("s", 10_000, "number of synthetic bars")
	scenario := fs.String("t", "", "scenario: illiquid|trending|ranging")
	out := fs.String("o", "", "output file for the simulation result (stdout if empty)")
	fs.Parse(os.Args[2:])

	err := a.RunSimulate(ctx, app.SimulateOptions{Steps: *steps, Scenario: parseScenario(*scenario), OutputFile: *out})
	if err != nil {
		logger.Error("simulate failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func parseScenario(v string) simulator.Scenario {
	switch v {
	case "illiquid":
		return simulator.ScenarioIlliquid
	case "trending":
		return simulator.ScenarioTrendingUp
	case "ranging":
		return simulator.ScenarioRanging
	default:
		return simulator.ScenarioNone
	}
}

func runTest(ctx context.Context, a *app.App, logger *slog.Logger) {
	if err := a.RunTest(ctx); err != nil {
		logger.Error("connectivity test failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("all checks passed")
}
