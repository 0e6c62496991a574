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
// built-in defaults, applies TIPPIN_* environment variable overrides, and
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

// applyEnvOverrides reads well-known TIPPIN_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "TIPPIN_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.Address, "TIPPIN_WALLET_ADDRESS")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "TIPPIN_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "TIPPIN_CHAIN_ID")

	// ── Contracts ──
	setStr(&cfg.Contracts.MUSDToken, "TIPPIN_CONTRACTS_MUSD_TOKEN")
	setStr(&cfg.Contracts.CollateralToken, "TIPPIN_CONTRACTS_COLLATERAL_TOKEN")
	setStr(&cfg.Contracts.VaultAddress, "TIPPIN_CONTRACTS_VAULT_ADDRESS")

	// ── Price feed ──
	setStr(&cfg.PriceFeed.URL, "TIPPIN_PRICE_FEED_URL")
	setDuration(&cfg.PriceFeed.PollInterval, "TIPPIN_PRICE_FEED_POLL_INTERVAL")
	setDuration(&cfg.PriceFeed.StaleAfter, "TIPPIN_PRICE_FEED_STALE_AFTER")

	// ── Balance ──
	setDuration(&cfg.Balance.PollInterval, "TIPPIN_BALANCE_POLL_INTERVAL")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TIPPIN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TIPPIN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TIPPIN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TIPPIN_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TIPPIN_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TIPPIN_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TIPPIN_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TIPPIN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TIPPIN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TIPPIN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TIPPIN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TIPPIN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TIPPIN_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TIPPIN_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TIPPIN_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TIPPIN_POSTGRES_RUN_MIGRATIONS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TIPPIN_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TIPPIN_SERVER_PORT")
	setStr(&cfg.Server.BaseURL, "TIPPIN_SERVER_BASE_URL")
	setStringSlice(&cfg.Server.CORSOrigins, "TIPPIN_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TIPPIN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TIPPIN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TIPPIN_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TIPPIN_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TIPPIN_MODE")
	setStr(&cfg.LogLevel, "TIPPIN_LOG_LEVEL")
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
