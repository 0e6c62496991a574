// Package pricefeed obtains the BTC/USD price from the upstream cache
// endpoint and keeps a fresh sample available to the rest of the service.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"net/http"
	"time"

	"github.com/tippinbit/tippind/internal/domain"
)

const (
	// Prices outside this band are treated as feed failures even when the
	// HTTP call succeeded.
	minSanePriceUSD = 10_000
	maxSanePriceUSD = 200_000

	retryBase     = 1 * time.Second
	retryCap      = 10 * time.Second
	fetchAttempts = 3
)

// Client fetches BTC/USD samples from the upstream price endpoint.
type Client struct {
	url    string
	http   *http.Client
	logger *slog.Logger

	// backoff delays are overridable so tests do not sleep for real.
	retryBase time.Duration
	retryCap  time.Duration
	attempts  int
}

// NewClient creates a Client for the given endpoint URL.
func NewClient(url string, logger *slog.Logger) *Client {
	return &Client{
		url:       url,
		http:      &http.Client{Timeout: 10 * time.Second},
		logger:    logger.With(slog.String("component", "pricefeed")),
		retryBase: retryBase,
		retryCap:  retryCap,
		attempts:  fetchAttempts,
	}
}

// feedResponse is the upstream JSON body.
type feedResponse struct {
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"` // epoch milliseconds
	Source    string  `json:"source"`
	Cached    bool    `json:"cached"`
}

// Fetch performs a single request against the price endpoint and validates
// the result. A price outside the sane band is an error, not a sample.
func (c *Client) Fetch(ctx context.Context) (domain.PriceSample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("pricefeed: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("pricefeed: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.PriceSample{}, fmt.Errorf("pricefeed: unexpected status %d", resp.StatusCode)
	}

	var body feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.PriceSample{}, fmt.Errorf("pricefeed: decode response: %w", err)
	}

	if body.Price < minSanePriceUSD || body.Price > maxSanePriceUSD {
		return domain.PriceSample{}, fmt.Errorf("pricefeed: price %.2f outside sane band [%d, %d]",
			body.Price, minSanePriceUSD, maxSanePriceUSD)
	}

	ts := time.UnixMilli(body.Timestamp)
	if body.Timestamp == 0 {
		ts = time.Now()
	}

	source := domain.PriceSourceLive
	if body.Cached || body.Source == string(domain.PriceSourceCached) {
		source = domain.PriceSourceCached
	}

	return domain.PriceSample{
		PriceUSD:    body.Price,
		PriceScaled: scalePrice(body.Price),
		Timestamp:   ts,
		Source:      source,
		Cached:      source == domain.PriceSourceCached,
	}, nil
}

// FetchWithRetry calls Fetch with exponential backoff: base delay doubling
// per attempt, capped, for a bounded number of attempts. The last error is
// returned once attempts are exhausted; no fallback price is invented.
func (c *Client) FetchWithRetry(ctx context.Context) (domain.PriceSample, error) {
	var lastErr error

	delay := c.retryBase
	for attempt := 1; attempt <= c.attempts; attempt++ {
		sample, err := c.Fetch(ctx)
		if err == nil {
			return sample, nil
		}
		lastErr = err

		c.logger.WarnContext(ctx, "price fetch failed",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)

		if attempt == c.attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.PriceSample{}, fmt.Errorf("pricefeed: %w", ctx.Err())
		case <-timer.C:
		}

		delay *= 2
		if delay > c.retryCap {
			delay = c.retryCap
		}
	}

	return domain.PriceSample{}, fmt.Errorf("pricefeed: all %d attempts failed: %w", c.attempts, lastErr)
}

// scalePrice converts a USD float into 1e18 fixed point via floor. The
// widened precision keeps the product exact before truncation.
func scalePrice(price float64) *big.Int {
	product := new(big.Float).SetPrec(256)
	product.Mul(big.NewFloat(price), big.NewFloat(math.Pow10(18)))
	scaled, _ := product.Int(nil)
	return scaled
}
