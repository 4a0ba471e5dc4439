// Package config defines the top-level configuration for the market-making
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/nkassim/perpmm/internal/notify"
)

// QuantityMode selects the sizing strategy used by the Sizer.
type QuantityMode string

const (
	QuantityModeFixed      QuantityMode = "fixed"
	QuantityModePercentage QuantityMode = "percentage"
	QuantityModeTiered     QuantityMode = "tiered"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MM_* environment variables.
type Config struct {
	QuantityMode      QuantityMode       `toml:"quantity_mode"`
	FixedSize         float64            `toml:"fixed_size"`
	PercentPerLevel   float64            `toml:"percent_per_level"`
	TieredMultipliers []float64          `toml:"tiered_multipliers"`
	Spread            SpreadConfig       `toml:"spread"`
	Risk              RiskConfig         `toml:"risk"`
	MaxLevels         int                `toml:"max_levels"`
	AutoHedge         AutoHedgeConfig    `toml:"auto_hedge"`
	RequoteIntervalMs int64              `toml:"requote_interval_ms"`

	InventorySkewEnabled bool    `toml:"inventory_skew_enabled"`
	InventorySkewFactor  float64 `toml:"inventory_skew_factor"`
	RequoteThreshold     float64 `toml:"requote_threshold"`

	Assets      map[string]AssetConfig `toml:"assets"`
	DefaultBias float64                `toml:"default_bias"`

	Oracle  OracleConfig  `toml:"oracle"`
	Cluster ClusterConfig `toml:"cluster"`

	Notify NotifyConfig `toml:"notify"`

	Store StoreConfig `toml:"store"`

	LogLevel string `toml:"log_level"`
}

// SpreadConfig bounds the SpreadEngine's dynamic spread output.
type SpreadConfig struct {
	Min         float64 `toml:"min"`
	Max         float64 `toml:"max"`
	DepthLevels int     `toml:"depth_levels"`
}

// RiskConfig bounds exposure and margin checked by RiskGate.
type RiskConfig struct {
	MinMarginFraction    float64 `toml:"min_margin_fraction"`
	MaxExposurePerSide   float64 `toml:"max_exposure_per_side"`
	MaxExposurePerMarket float64 `toml:"max_exposure_per_market"`
	MaxTotalExposure     float64 `toml:"max_total_exposure"`
	MinFreeCollateral    float64 `toml:"min_free_collateral"`
}

// AutoHedgeConfig controls the HedgeExecutor's trigger threshold.
type AutoHedgeConfig struct {
	Enabled            bool    `toml:"enabled"`
	ImbalanceThreshold float64 `toml:"imbalance_threshold"`
}

// AssetConfig is the per-market override InventoryShaper reads.
type AssetConfig struct {
	Bias float64 `toml:"bias"`
}

// OracleConfig controls PriceOracle's sources, refresh cadence, and
// fallback behavior.
type OracleConfig struct {
	Enabled             bool      `toml:"enabled"`
	Sources             []string  `toml:"sources"`
	UpdateInterval      duration  `toml:"update_interval"`
	FallbackToOrderbook bool      `toml:"fallback_to_orderbook"`
	CacheTimeoutMs      int64     `toml:"cache_timeout_ms"`
	CacheBackend        string    `toml:"cache_backend"` // "memory" (default) or "redis"
	RedisAddr           string    `toml:"redis_addr"`
	RateLimitPerSecond  float64   `toml:"rate_limit_per_second"`
}

// ClusterConfig describes the external worker-supervisor process model.
// Not consulted by the core quoting pipeline.
type ClusterConfig struct {
	Enabled            bool    `toml:"enabled"`
	ProcessGroups      [][]int `toml:"process_groups"`
	WorkerRestartDelay duration `toml:"worker_restart_delay"`
	MaxRestarts        int     `toml:"max_restarts"`
}

// NotifyConfig holds the advisory notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// StoreConfig controls the optional PostgreSQL persistence of completed
// backtest and simulation runs. The CLI's JSON/CSV export never depends on
// this; it is purely supplemental history for later querying.
type StoreConfig struct {
	Enabled  bool   `toml:"enabled"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	SSLMode  string `toml:"ssl_mode"`
	MaxConns int    `toml:"max_conns"`
	MinConns int    `toml:"min_conns"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// validSources enumerates the oracle adapters the pack ships.
var validSources = map[string]bool{
	"binance":  true,
	"bybit":    true,
	"coinbase": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Defaults returns a Config populated with reasonable default values. Load
// starts from these before decoding the TOML file on top.
func Defaults() Config {
	return Config{
		QuantityMode:      QuantityModeFixed,
		FixedSize:         0.1,
		PercentPerLevel:   0.01,
		TieredMultipliers: []float64{0.5, 0.3, 0.2},
		Spread: SpreadConfig{
			Min:         0.0015,
			Max:         0.0125,
			DepthLevels: 5,
		},
		Risk: RiskConfig{
			MinMarginFraction:    0.18,
			MaxExposurePerSide:   0.5,
			MaxExposurePerMarket: 0.3,
			MaxTotalExposure:     0.8,
			MinFreeCollateral:    100,
		},
		MaxLevels: 3,
		AutoHedge: AutoHedgeConfig{
			Enabled:            true,
			ImbalanceThreshold: 0.3,
		},
		RequoteIntervalMs:    15_000,
		InventorySkewEnabled: true,
		InventorySkewFactor:  0.1,
		RequoteThreshold:     0.0003,
		Assets:               map[string]AssetConfig{},
		DefaultBias:          0,
		Oracle: OracleConfig{
			Enabled:             true,
			Sources:             []string{"binance", "bybit", "coinbase"},
			UpdateInterval:      duration{10 * time.Second},
			FallbackToOrderbook: true,
			CacheTimeoutMs:      5_000,
			CacheBackend:        "memory",
			RateLimitPerSecond:  5,
		},
		Cluster: ClusterConfig{
			Enabled:            false,
			WorkerRestartDelay: duration{5 * time.Second},
			MaxRestarts:        5,
		},
		Notify: NotifyConfig{
			Events: []string{notify.EventRiskDeniedStreak, notify.EventHedgeExecuted, notify.EventOracleBlackout},
		},
		Store: StoreConfig{
			Enabled:  false,
			Host:     "localhost",
			Port:     5432,
			Database: "perpmm",
			SSLMode:  "disable",
			MaxConns: 5,
			MinConns: 1,
		},
		LogLevel: "info",
	}
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found. The first
// violated invariant appears first in the joined message.
func (c *Config) Validate() error {
	var errs []string

	switch c.QuantityMode {
	case QuantityModeFixed, QuantityModePercentage, QuantityModeTiered:
	default:
		errs = append(errs, fmt.Sprintf("quantity_mode: unknown value %q (valid: fixed, percentage, tiered)", c.QuantityMode))
	}

	if c.MaxLevels < 1 || c.MaxLevels > 10 {
		errs = append(errs, fmt.Sprintf("max_levels: must be in [1,10], got %d", c.MaxLevels))
	}

	if c.QuantityMode == QuantityModeTiered {
		if len(c.TieredMultipliers) < c.MaxLevels {
			errs = append(errs, fmt.Sprintf("tiered_multipliers: length %d must be >= max_levels %d", len(c.TieredMultipliers), c.MaxLevels))
		}
		sum := 0.0
		for _, m := range c.TieredMultipliers {
			sum += m
		}
		if len(c.TieredMultipliers) > 0 {
			if diff := sum - 1.0; diff < -0.01 || diff > 0.01 {
				errs = append(errs, fmt.Sprintf("tiered_multipliers: sum %.4f must be within 0.01 of 1.0", sum))
			}
		}
	}

	if c.Spread.Min < 0 || c.Spread.Max < c.Spread.Min {
		errs = append(errs, fmt.Sprintf("spread: min (%v) must be >= 0 and <= max (%v)", c.Spread.Min, c.Spread.Max))
	}
	if c.Spread.DepthLevels <= 0 {
		errs = append(errs, "spread: depth_levels must be positive")
	}

	if c.Risk.MinMarginFraction <= 0 || c.Risk.MinMarginFraction >= 1 {
		errs = append(errs, fmt.Sprintf("risk: min_margin_fraction must be in (0,1), got %v", c.Risk.MinMarginFraction))
	}
	if c.Risk.MaxExposurePerSide <= 0 {
		errs = append(errs, "risk: max_exposure_per_side must be > 0")
	}
	if c.Risk.MaxExposurePerMarket <= 0 {
		errs = append(errs, "risk: max_exposure_per_market must be > 0")
	}
	if c.Risk.MaxTotalExposure <= 0 {
		errs = append(errs, "risk: max_total_exposure must be > 0")
	}
	if c.Risk.MinFreeCollateral < 0 {
		errs = append(errs, "risk: min_free_collateral must be >= 0")
	}

	if c.AutoHedge.Enabled {
		if c.AutoHedge.ImbalanceThreshold <= 0 || c.AutoHedge.ImbalanceThreshold >= 1 {
			errs = append(errs, fmt.Sprintf("auto_hedge: imbalance_threshold must be in (0,1), got %v", c.AutoHedge.ImbalanceThreshold))
		}
	}

	if c.RequoteThreshold < 0 || c.RequoteThreshold > 0.01 {
		errs = append(errs, fmt.Sprintf("requote_threshold: must be in [0, 0.01], got %v", c.RequoteThreshold))
	}

	for id, asset := range c.Assets {
		if asset.Bias < -0.01 || asset.Bias > 0.01 {
			errs = append(errs, fmt.Sprintf("assets[%s].bias: must be in [-0.01, 0.01], got %v", id, asset.Bias))
		}
	}
	if c.DefaultBias < -0.01 || c.DefaultBias > 0.01 {
		errs = append(errs, fmt.Sprintf("default_bias: must be in [-0.01, 0.01], got %v", c.DefaultBias))
	}

	if c.Oracle.Enabled {
		if len(c.Oracle.Sources) == 0 {
			errs = append(errs, "oracle: sources must be non-empty when enabled")
		}
		for _, s := range c.Oracle.Sources {
			if !validSources[strings.ToLower(s)] {
				errs = append(errs, fmt.Sprintf("oracle: unknown source %q (valid: binance, bybit, coinbase)", s))
			}
		}
		if c.Oracle.CacheTimeoutMs <= 0 {
			errs = append(errs, "oracle: cache_timeout_ms must be > 0 when enabled")
		}
	}

	if c.Cluster.Enabled && len(c.Cluster.ProcessGroups) == 0 {
		errs = append(errs, "cluster: process_groups must be non-empty when enabled")
	}

	if c.Store.Enabled && strings.TrimSpace(c.Store.Database) == "" {
		errs = append(errs, "store: database must be set when enabled")
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("log_level: unknown value %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
