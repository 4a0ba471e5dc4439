package config

// RedactedConfig returns a deep copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed. The
// PRIVATE_KEY_BASE58 credential never lives on Config itself (it is read
// directly from the environment by the venue layer), so what's left to
// redact here is the notification channel secrets plus the Redis and
// Postgres connection credentials.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}

	redact(&out.Oracle.RedisAddr)
	redact(&out.Store.Password)

	if cfg.TieredMultipliers != nil {
		out.TieredMultipliers = make([]float64, len(cfg.TieredMultipliers))
		copy(out.TieredMultipliers, cfg.TieredMultipliers)
	}
	if cfg.Oracle.Sources != nil {
		out.Oracle.Sources = make([]string, len(cfg.Oracle.Sources))
		copy(out.Oracle.Sources, cfg.Oracle.Sources)
	}
	if cfg.Assets != nil {
		out.Assets = make(map[string]AssetConfig, len(cfg.Assets))
		for k, v := range cfg.Assets {
			out.Assets[k] = v
		}
	}
	if cfg.Cluster.ProcessGroups != nil {
		out.Cluster.ProcessGroups = make([][]int, len(cfg.Cluster.ProcessGroups))
		for i, g := range cfg.Cluster.ProcessGroups {
			out.Cluster.ProcessGroups[i] = append([]int(nil), g...)
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
