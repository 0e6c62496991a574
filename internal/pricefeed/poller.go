package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tippinbit/tippind/internal/domain"
)

// ChannelPriceUpdates is the signal-bus channel carrying new price samples.
const ChannelPriceUpdates = "price_updates"

// Poller keeps the most recent good price sample in memory, refreshing it on
// a fixed interval. The last sample stays visible while a refresh is in
// flight; only staleness changes with the clock.
type Poller struct {
	client    *Client
	cache     domain.PriceCache
	bus       domain.SignalBus
	interval  time.Duration
	staleness time.Duration
	logger    *slog.Logger

	mu      sync.RWMutex
	latest  domain.PriceSample
	hasData bool
	lastErr error
}

// NewPoller creates a Poller. cache and bus may be nil, in which case samples
// are only held in memory.
func NewPoller(client *Client, cache domain.PriceCache, bus domain.SignalBus, interval, staleness time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		client:    client,
		cache:     cache,
		bus:       bus,
		interval:  interval,
		staleness: staleness,
		logger:    logger.With(slog.String("component", "price_poller")),
	}
}

// Run seeds from the mirrored cache sample, fetches immediately, then on
// every interval tick until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.seed(ctx)
	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("price poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// Refetch forces an out-of-band fetch regardless of the interval timer.
func (p *Poller) Refetch(ctx context.Context) (domain.PriceSample, error) {
	p.poll(ctx)
	return p.Latest()
}

// Latest returns the most recent good sample. When no fetch has succeeded
// yet it returns the last error wrapped as ErrPriceUnavailable.
func (p *Poller) Latest() (domain.PriceSample, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.hasData {
		return domain.PriceSample{}, domain.ErrPriceUnavailable
	}
	return p.latest, nil
}

// Fresh returns the latest sample only if it is within the staleness
// threshold, evaluated now.
func (p *Poller) Fresh() (domain.PriceSample, error) {
	sample, err := p.Latest()
	if err != nil {
		return domain.PriceSample{}, err
	}
	if sample.IsStale(p.staleness, time.Now()) {
		return domain.PriceSample{}, domain.ErrPriceStale
	}
	return sample, nil
}

// seed loads the last mirrored sample from the cache so a restarted daemon
// serves the previous price while the upstream feed is unreachable. A live
// fetch overwrites it; staleness is still judged at read time from the
// sample's own timestamp.
func (p *Poller) seed(ctx context.Context) {
	if p.cache == nil {
		return
	}
	sample, err := p.cache.GetSample(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			p.logger.WarnContext(ctx, "price cache read failed", slog.String("error", err.Error()))
		}
		return
	}

	p.mu.Lock()
	if !p.hasData {
		p.latest = sample
		p.hasData = true
	}
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "price seeded from cache",
		slog.Float64("price_usd", sample.PriceUSD),
		slog.Time("sampled_at", sample.Timestamp),
	)
}

func (p *Poller) poll(ctx context.Context) {
	sample, err := p.client.FetchWithRetry(ctx)

	p.mu.Lock()
	if err != nil {
		// Keep the previous sample visible; record the error for consumers
		// that have no data at all yet.
		p.lastErr = err
		p.mu.Unlock()
		p.logger.ErrorContext(ctx, "price poll failed", slog.String("error", err.Error()))
		return
	}
	p.latest = sample
	p.hasData = true
	p.lastErr = nil
	p.mu.Unlock()

	p.logger.DebugContext(ctx, "price updated",
		slog.Float64("price_usd", sample.PriceUSD),
		slog.String("source", string(sample.Source)),
	)

	if p.cache != nil {
		if err := p.cache.SetSample(ctx, sample); err != nil {
			p.logger.WarnContext(ctx, "price cache write failed", slog.String("error", err.Error()))
		}
	}
	if p.bus != nil {
		payload, err := json.Marshal(sample)
		if err == nil {
			if err := p.bus.Publish(ctx, ChannelPriceUpdates, payload); err != nil {
				p.logger.WarnContext(ctx, "price publish failed", slog.String("error", err.Error()))
			}
		}
	}
}
