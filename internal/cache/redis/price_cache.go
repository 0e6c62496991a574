package redis

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tippinbit/tippind/internal/domain"
)

// priceSampleKey holds the single BTC/USD sample as a hash with fields
// "price", "scaled", "ts", "source" and "cached".
const priceSampleKey = "price:btcusd"

// PriceCache implements domain.PriceCache. The cache mirrors the poller's
// in-memory sample so restarts and sibling processes can serve a price
// without waiting for the first upstream fetch.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

// SetSample stores the latest sample, replacing the previous one wholesale.
func (pc *PriceCache) SetSample(ctx context.Context, sample domain.PriceSample) error {
	fields := map[string]interface{}{
		"price":  strconv.FormatFloat(sample.PriceUSD, 'f', -1, 64),
		"scaled": sample.PriceScaled.String(),
		"ts":     strconv.FormatInt(sample.Timestamp.UnixNano(), 10),
		"source": string(sample.Source),
		"cached": strconv.FormatBool(sample.Cached),
	}
	if err := pc.rdb.HSet(ctx, priceSampleKey, fields).Err(); err != nil {
		return fmt.Errorf("redis: set price sample: %w", err)
	}
	return nil
}

// GetSample retrieves the latest sample. It returns domain.ErrNotFound when
// no sample has ever been stored.
func (pc *PriceCache) GetSample(ctx context.Context) (domain.PriceSample, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceSampleKey).Result()
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("redis: get price sample: %w", err)
	}
	if len(vals) == 0 {
		return domain.PriceSample{}, domain.ErrNotFound
	}

	price, err := strconv.ParseFloat(vals["price"], 64)
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("redis: parse price: %w", err)
	}
	scaled, ok := new(big.Int).SetString(vals["scaled"], 10)
	if !ok {
		return domain.PriceSample{}, fmt.Errorf("redis: parse scaled price %q", vals["scaled"])
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("redis: parse ts: %w", err)
	}
	cached, _ := strconv.ParseBool(vals["cached"])

	return domain.PriceSample{
		PriceUSD:    price,
		PriceScaled: scaled,
		Timestamp:   time.Unix(0, tsNano),
		Source:      domain.PriceSource(vals["source"]),
		Cached:      cached,
	}, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
