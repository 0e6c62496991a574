package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())

	// The default feed must be the caching proxy, not CoinGecko's raw API,
	// whose response shape the fetcher cannot decode.
	assert.Equal(t, "https://tippinbit.app/api/btc-price", cfg.PriceFeed.URL)
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.Chain.RPCURL = ""
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "rpc_url")
	assert.Contains(t, err.Error(), "redis: addr")
}

func TestValidate_StaleAfterBelowPollInterval(t *testing.T) {
	cfg := Defaults()
	cfg.PriceFeed.StaleAfter = duration{time.Minute}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stale_after")
}

func TestValidate_TelegramFieldsTogether(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.TelegramToken = "token"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TIPPIN_WALLET_PRIVATE_KEY", "deadbeef")
	t.Setenv("TIPPIN_SERVER_PORT", "9000")
	t.Setenv("TIPPIN_PRICE_FEED_POLL_INTERVAL", "30s")
	t.Setenv("TIPPIN_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "deadbeef", cfg.Wallet.PrivateKey)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.PriceFeed.PollInterval.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "secret"
	cfg.Redis.Password = "hunter2"
	cfg.Notify.DiscordWebhookURL = "https://discord.example/hook"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Wallet.PrivateKey)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.Notify.DiscordWebhookURL)

	// Original untouched.
	assert.Equal(t, "secret", cfg.Wallet.PrivateKey)

	// Empty secrets stay empty rather than becoming placeholders.
	assert.Empty(t, red.Postgres.Password)
}
