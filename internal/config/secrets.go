package config

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Coinbase.PrivateKeyPEM)
	redact(&out.Coinbase.KeyPassword)
	redact(&out.Binance.ApiKey)
	redact(&out.Binance.ApiSecret)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices and maps so callers cannot mutate the original through the
	// redacted copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}
	if cfg.Assets != nil {
		out.Assets = make([]AssetConfig, len(cfg.Assets))
		copy(out.Assets, cfg.Assets)
	}
	if cfg.Arbitrage.DepositAddresses != nil {
		out.Arbitrage.DepositAddresses = make(map[string]string, len(cfg.Arbitrage.DepositAddresses))
		for k, v := range cfg.Arbitrage.DepositAddresses {
			out.Arbitrage.DepositAddresses[k] = v
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
