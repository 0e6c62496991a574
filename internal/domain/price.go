package domain

import (
	"math/big"
	"time"
)

// PriceSource identifies where a BTC/USD sample originated.
type PriceSource string

const (
	PriceSourceLive   PriceSource = "CoinGecko"
	PriceSourceCached PriceSource = "Cache"
)

// PriceSample is one observation of the BTC/USD price. Samples are replaced
// wholesale on each successful fetch, never partially updated.
type PriceSample struct {
	// PriceUSD is the raw upstream price in USD per BTC.
	PriceUSD float64 `json:"price"`
	// PriceScaled is floor(PriceUSD * 1e18), the fixed-point form all
	// collateral math consumes.
	PriceScaled *big.Int    `json:"-"`
	Timestamp   time.Time   `json:"timestamp"`
	Source      PriceSource `json:"source"`
	Cached      bool        `json:"cached"`
}

// IsStale reports whether more than threshold has elapsed since the sample
// was taken. Staleness is evaluated at read time: a sample that was fresh a
// minute ago goes stale by clock advancement alone.
func (s PriceSample) IsStale(threshold time.Duration, now time.Time) bool {
	return now.Sub(s.Timestamp) > threshold
}
