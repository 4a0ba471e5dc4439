package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MM_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MM_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject per-deploy overrides without
// touching the TOML file. LOG_LEVEL (bare, per the venue's required
// environment variables) is also honored here as an alias for MM_LOG_LEVEL.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MM_QUANTITY_MODE"); v != "" {
		cfg.QuantityMode = QuantityMode(v)
	}
	setFloat64(&cfg.FixedSize, "MM_FIXED_SIZE")
	setFloat64(&cfg.PercentPerLevel, "MM_PERCENT_PER_LEVEL")
	setFloat64Slice(&cfg.TieredMultipliers, "MM_TIERED_MULTIPLIERS")

	setFloat64(&cfg.Spread.Min, "MM_SPREAD_MIN")
	setFloat64(&cfg.Spread.Max, "MM_SPREAD_MAX")
	setInt(&cfg.Spread.DepthLevels, "MM_SPREAD_DEPTH_LEVELS")

	setFloat64(&cfg.Risk.MinMarginFraction, "MM_RISK_MIN_MARGIN_FRACTION")
	setFloat64(&cfg.Risk.MaxExposurePerSide, "MM_RISK_MAX_EXPOSURE_PER_SIDE")
	setFloat64(&cfg.Risk.MaxExposurePerMarket, "MM_RISK_MAX_EXPOSURE_PER_MARKET")
	setFloat64(&cfg.Risk.MaxTotalExposure, "MM_RISK_MAX_TOTAL_EXPOSURE")
	setFloat64(&cfg.Risk.MinFreeCollateral, "MM_RISK_MIN_FREE_COLLATERAL")

	setInt(&cfg.MaxLevels, "MM_MAX_LEVELS")

	setBool(&cfg.AutoHedge.Enabled, "MM_AUTO_HEDGE_ENABLED")
	setFloat64(&cfg.AutoHedge.ImbalanceThreshold, "MM_AUTO_HEDGE_IMBALANCE_THRESHOLD")

	setInt64(&cfg.RequoteIntervalMs, "MM_REQUOTE_INTERVAL_MS")
	setBool(&cfg.InventorySkewEnabled, "MM_INVENTORY_SKEW_ENABLED")
	setFloat64(&cfg.InventorySkewFactor, "MM_INVENTORY_SKEW_FACTOR")
	setFloat64(&cfg.RequoteThreshold, "MM_REQUOTE_THRESHOLD")
	setFloat64(&cfg.DefaultBias, "MM_DEFAULT_BIAS")

	setBool(&cfg.Oracle.Enabled, "MM_ORACLE_ENABLED")
	setStringSlice(&cfg.Oracle.Sources, "MM_ORACLE_SOURCES")
	setDuration(&cfg.Oracle.UpdateInterval, "MM_ORACLE_UPDATE_INTERVAL")
	setBool(&cfg.Oracle.FallbackToOrderbook, "MM_ORACLE_FALLBACK_TO_ORDERBOOK")
	setInt64(&cfg.Oracle.CacheTimeoutMs, "MM_ORACLE_CACHE_TIMEOUT_MS")
	setStr(&cfg.Oracle.CacheBackend, "MM_ORACLE_CACHE_BACKEND")
	setStr(&cfg.Oracle.RedisAddr, "MM_ORACLE_REDIS_ADDR")
	setFloat64(&cfg.Oracle.RateLimitPerSecond, "MM_ORACLE_RATE_LIMIT_PER_SECOND")

	setBool(&cfg.Cluster.Enabled, "MM_CLUSTER_ENABLED")
	setDuration(&cfg.Cluster.WorkerRestartDelay, "MM_CLUSTER_WORKER_RESTART_DELAY")
	setInt(&cfg.Cluster.MaxRestarts, "MM_CLUSTER_MAX_RESTARTS")

	setStr(&cfg.Notify.TelegramToken, "MM_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MM_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MM_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MM_NOTIFY_EVENTS")

	setStr(&cfg.LogLevel, "MM_LOG_LEVEL")
	setStr(&cfg.LogLevel, "LOG_LEVEL") // bare alias required by the venue contract
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

func setFloat64Slice(dst *[]float64, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		parsed := make([]float64, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			f, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return
			}
			parsed = append(parsed, f)
		}
		if len(parsed) > 0 {
			*dst = parsed
		}
	}
}
