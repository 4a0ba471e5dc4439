package backtest

import (
	"github.com/nkassim/perpmm/internal/config"
	"github.com/nkassim/perpmm/internal/spread"
)

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.MaxLevels = 2
	cfg.FixedSize = 0.01
	return cfg
}

func spreadEngineForTest(cfg config.Config) *spread.Engine {
	return spread.New(cfg.Spread)
}
