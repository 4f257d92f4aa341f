// Package config defines the top-level configuration for the cross-exchange
// arbitrage bot and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by CROSSARB_* environment
// variables.
type Config struct {
	Coinbase  CoinbaseConfig  `toml:"coinbase"`
	Binance   BinanceConfig   `toml:"binance"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Arbitrage ArbitrageConfig `toml:"arbitrage"`
	Monitor   MonitorConfig   `toml:"monitor"`
	Notify    NotifyConfig    `toml:"notify"`
	Assets    []AssetConfig   `toml:"assets"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// CoinbaseConfig holds Coinbase Advanced Trade API credentials. The CDP
// private key may be given inline as PEM, as a path, or as an encrypted key
// file plus password.
type CoinbaseConfig struct {
	BaseURL          string `toml:"base_url"`
	KeyName          string `toml:"key_name"`
	PrivateKeyPEM    string `toml:"private_key_pem"`
	PrivateKeyPath   string `toml:"private_key_path"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// BinanceConfig holds Binance spot API credentials and endpoints.
type BinanceConfig struct {
	BaseURL   string `toml:"base_url"`
	StreamURL string `toml:"stream_url"`
	ApiKey    string `toml:"api_key"`
	ApiSecret string `toml:"api_secret"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. When Addr is empty the app
// falls back to the in-process lock manager and skips the price cache.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the raw-payload
// diagnostics archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArbitrageConfig holds execution parameters for the buy-transfer-sell saga.
type ArbitrageConfig struct {
	// BuyVenue and SellVenue name the direction of every attempt.
	BuyVenue  string `toml:"buy_venue"`
	SellVenue string `toml:"sell_venue"`

	// Amount is the quote-currency size committed to each buy. Zero falls
	// back to the per-asset increment.
	Amount float64 `toml:"amount"`

	// RepeatInterval re-runs the configured attempts on a timer. Zero means
	// run once and exit.
	RepeatInterval duration `toml:"repeat_interval"`

	CallTimeout  duration `toml:"call_timeout"`
	TransferWait duration `toml:"transfer_wait"`
	LockTTL      duration `toml:"lock_ttl"`

	// DepositAddresses maps "venue:symbol" to the deposit address on that
	// venue. An attempt whose transfer target has no address fails before
	// any order is placed.
	DepositAddresses map[string]string `toml:"deposit_addresses"`
}

// MonitorConfig holds price-feed parameters for monitor mode.
type MonitorConfig struct {
	// PollInterval is the Coinbase REST polling cadence.
	PollInterval duration `toml:"poll_interval"`

	// FlushInterval is how often buffered price points are written to the
	// history table.
	FlushInterval duration `toml:"flush_interval"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// AssetConfig describes one tradeable asset.
type AssetConfig struct {
	Symbol        string  `toml:"symbol"`
	QuoteCurrency string  `toml:"quote_currency"`
	Increment     float64 `toml:"increment"`
}

// duration wraps time.Duration so the TOML decoder can parse strings like
// "5m" or "30s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Coinbase: CoinbaseConfig{
			BaseURL: "https://api.coinbase.com",
		},
		Binance: BinanceConfig{
			BaseURL:   "https://api.binance.com",
			StreamURL: "wss://stream.binance.com:9443",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "crossarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "crossarb-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Arbitrage: ArbitrageConfig{
			BuyVenue:         "coinbase",
			SellVenue:        "binance",
			Amount:           0,
			CallTimeout:      duration{30 * time.Second},
			TransferWait:     duration{2 * time.Minute},
			LockTTL:          duration{5 * time.Minute},
			DepositAddresses: map[string]string{},
		},
		Monitor: MonitorConfig{
			PollInterval:  duration{5 * time.Second},
			FlushInterval: duration{30 * time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"attempt_settled", "attempt_stranded", "attempt_reconcile", "feed_error"},
		},
		Assets: []AssetConfig{
			{Symbol: "ETH", QuoteCurrency: "USDC", Increment: 10},
		},
		Mode:     "arbitrage",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"arbitrage": true,
	"monitor":   true,
	"check":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validVenues = map[string]bool{
	"coinbase": true,
	"binance":  true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: arbitrage, monitor, check)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Coinbase wants exactly one private-key source.
	keySources := 0
	if c.Coinbase.PrivateKeyPEM != "" {
		keySources++
	}
	if c.Coinbase.PrivateKeyPath != "" {
		keySources++
	}
	if c.Coinbase.EncryptedKeyPath != "" {
		keySources++
	}
	if c.Mode != "monitor" {
		if c.Coinbase.KeyName == "" {
			errs = append(errs, "coinbase: key_name is required")
		}
		if keySources == 0 {
			errs = append(errs, "coinbase: one of private_key_pem, private_key_path, or encrypted_key_path must be set")
		}
	}
	if keySources > 1 {
		errs = append(errs, "coinbase: private_key_pem, private_key_path, and encrypted_key_path are mutually exclusive")
	}
	if c.Coinbase.EncryptedKeyPath != "" && c.Coinbase.KeyPassword == "" {
		errs = append(errs, "coinbase: key_password is required when encrypted_key_path is set")
	}
	if c.Coinbase.BaseURL == "" {
		errs = append(errs, "coinbase: base_url must not be empty")
	}

	// Binance
	if c.Binance.BaseURL == "" {
		errs = append(errs, "binance: base_url must not be empty")
	}
	if c.Mode != "monitor" && (c.Binance.ApiKey == "" || c.Binance.ApiSecret == "") {
		errs = append(errs, "binance: api_key and api_secret are required")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis (optional; validated only when configured)
	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Arbitrage
	if c.Mode == "arbitrage" {
		if !validVenues[strings.ToLower(c.Arbitrage.BuyVenue)] {
			errs = append(errs, fmt.Sprintf("arbitrage: unknown buy_venue %q", c.Arbitrage.BuyVenue))
		}
		if !validVenues[strings.ToLower(c.Arbitrage.SellVenue)] {
			errs = append(errs, fmt.Sprintf("arbitrage: unknown sell_venue %q", c.Arbitrage.SellVenue))
		}
		if strings.EqualFold(c.Arbitrage.BuyVenue, c.Arbitrage.SellVenue) {
			errs = append(errs, "arbitrage: buy_venue and sell_venue must differ")
		}
		if c.Arbitrage.Amount < 0 {
			errs = append(errs, "arbitrage: amount must be >= 0")
		}
		if c.Arbitrage.CallTimeout.Duration <= 0 {
			errs = append(errs, "arbitrage: call_timeout must be > 0")
		}
		if c.Arbitrage.TransferWait.Duration <= 0 {
			errs = append(errs, "arbitrage: transfer_wait must be > 0")
		}
		if c.Arbitrage.LockTTL.Duration <= 0 {
			errs = append(errs, "arbitrage: lock_ttl must be > 0")
		}
		// The lock must outlive the worst-case attempt, which is dominated
		// by the transfer confirmation wait.
		if c.Arbitrage.LockTTL.Duration <= c.Arbitrage.TransferWait.Duration+c.Arbitrage.CallTimeout.Duration {
			errs = append(errs, "arbitrage: lock_ttl must exceed transfer_wait + call_timeout")
		}
	}

	// Monitor
	if c.Mode == "monitor" {
		if c.Monitor.PollInterval.Duration <= 0 {
			errs = append(errs, "monitor: poll_interval must be > 0")
		}
		if c.Monitor.FlushInterval.Duration <= 0 {
			errs = append(errs, "monitor: flush_interval must be > 0")
		}
	}

	// Assets
	if len(c.Assets) == 0 {
		errs = append(errs, "assets: at least one asset must be configured")
	}
	for i, a := range c.Assets {
		if a.Symbol == "" {
			errs = append(errs, fmt.Sprintf("assets[%d]: symbol must not be empty", i))
		}
		if a.QuoteCurrency == "" {
			errs = append(errs, fmt.Sprintf("assets[%d]: quote_currency must not be empty", i))
		}
		if a.Increment < 0 {
			errs = append(errs, fmt.Sprintf("assets[%d]: increment must be >= 0", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
