package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	s3blob "github.com/alanyoungcy/crossarb/internal/blob/s3"
	"github.com/alanyoungcy/crossarb/internal/cache/mem"
	"github.com/alanyoungcy/crossarb/internal/cache/redis"
	"github.com/alanyoungcy/crossarb/internal/config"
	"github.com/alanyoungcy/crossarb/internal/crypto"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/notify"
	"github.com/alanyoungcy/crossarb/internal/store/postgres"
	"github.com/alanyoungcy/crossarb/internal/venue"
	"github.com/alanyoungcy/crossarb/internal/venue/binance"
	"github.com/alanyoungcy/crossarb/internal/venue/coinbase"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Venues *venue.Registry
	Assets []domain.Asset

	Attempts   domain.AttemptStore
	Prices     domain.PriceStore
	PriceCache domain.PriceCache
	Locks      domain.LockManager

	Archiver domain.PayloadArchiver
	Notifier *notify.Notifier

	// BinanceStream is non-nil when Binance credentials allow monitor mode's
	// websocket feed.
	BinanceStreamURL string
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	switch mode {
	case "arbitrage", "monitor":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		BinanceStreamURL: cfg.Binance.StreamURL,
	}

	// --- Assets ---
	for _, a := range cfg.Assets {
		deps.Assets = append(deps.Assets, domain.NewAsset(a.Symbol, a.QuoteCurrency, a.Increment))
	}

	// --- Venue clients ---
	cb := coinbase.NewClient(
		cfg.Coinbase.BaseURL,
		cfg.Coinbase.KeyName,
		cfg.Arbitrage.CallTimeout.Duration,
		cfg.Arbitrage.TransferWait.Duration,
	)
	pem, err := loadCoinbaseKey(cfg.Coinbase)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: coinbase key: %w", err)
	}
	if pem != nil {
		if err := cb.SetECPrivateKey(pem); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: coinbase key: %w", err)
		}
	}

	bn := binance.NewClient(
		cfg.Binance.BaseURL,
		cfg.Binance.ApiKey,
		cfg.Binance.ApiSecret,
		cfg.Arbitrage.CallTimeout.Duration,
		cfg.Arbitrage.TransferWait.Duration,
	)

	deps.Venues = venue.NewRegistry()
	deps.Venues.Register(cb)
	deps.Venues.Register(bn)

	// --- PostgreSQL ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Attempts = postgres.NewAttemptStore(pool)
		deps.Prices = postgres.NewPriceStore(pool)
	}

	// --- Redis (optional: empty addr falls back to the in-process locker) ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Locks = redis.NewLockManager(redisClient)
		deps.PriceCache = redis.NewPriceCache(redisClient)
	} else {
		logger.Warn("redis.addr not set, using in-process locking (single instance only)")
		deps.Locks = mem.NewLockManager()
	}

	// --- S3 diagnostics archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewPayloadArchiver(s3blob.NewWriter(s3Client))
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// loadCoinbaseKey resolves the CDP signing key from whichever source the
// config provides. Returns nil when no source is configured (monitor mode
// only needs unauthenticated endpoints).
func loadCoinbaseKey(cfg config.CoinbaseConfig) ([]byte, error) {
	switch {
	case cfg.PrivateKeyPEM != "":
		return []byte(cfg.PrivateKeyPEM), nil
	case cfg.PrivateKeyPath != "":
		pem, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", cfg.PrivateKeyPath, err)
		}
		return pem, nil
	case cfg.EncryptedKeyPath != "":
		pem, err := crypto.LoadSecret(crypto.SecretConfig{
			EncryptedPath: cfg.EncryptedKeyPath,
			Password:      cfg.KeyPassword,
		})
		if err != nil {
			return nil, err
		}
		return pem, nil
	}
	return nil, nil
}

// AssetBySymbol returns the configured asset for symbol.
func (d *Dependencies) AssetBySymbol(symbol string) (domain.Asset, bool) {
	for _, a := range d.Assets {
		if strings.EqualFold(a.Symbol, symbol) {
			return a, true
		}
	}
	return domain.Asset{}, false
}
