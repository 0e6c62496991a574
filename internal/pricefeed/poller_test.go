package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tippinbit/tippind/internal/domain"
)

func TestStaleness_EvaluatedAtReadTime(t *testing.T) {
	threshold := 10 * time.Minute
	now := time.Now()

	old := domain.PriceSample{Timestamp: now.Add(-15 * time.Minute)}
	assert.True(t, old.IsStale(threshold, now))

	recent := domain.PriceSample{Timestamp: now.Add(-3 * time.Minute)}
	assert.False(t, recent.IsStale(threshold, now))

	// The same sample becomes stale purely by clock advancement.
	assert.True(t, recent.IsStale(threshold, now.Add(8*time.Minute)))
}

func TestPoller_LatestBeforeFirstFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewPoller(fastClient(srv.URL), nil, nil, time.Minute, 10*time.Minute, testLogger())

	_, err := p.Latest()
	assert.True(t, errors.Is(err, domain.ErrPriceUnavailable))
}

func TestPoller_RefetchAndKeepOnFailure(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, `{"price": 50000, "timestamp": %d, "source": "CoinGecko", "cached": false}`, time.Now().UnixMilli())
	}))
	defer srv.Close()

	p := NewPoller(fastClient(srv.URL), nil, nil, time.Minute, 10*time.Minute, testLogger())

	sample, err := p.Refetch(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 50000.0, sample.PriceUSD, 1e-9)

	// A failing refresh must not blank the previously good sample.
	fail.Store(true)
	kept, err := p.Refetch(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 50000.0, kept.PriceUSD, 1e-9)
}

// fakePriceCache is an in-memory stand-in for the Redis mirror.
type fakePriceCache struct {
	sample *domain.PriceSample
}

func (c *fakePriceCache) SetSample(_ context.Context, sample domain.PriceSample) error {
	c.sample = &sample
	return nil
}

func (c *fakePriceCache) GetSample(_ context.Context) (domain.PriceSample, error) {
	if c.sample == nil {
		return domain.PriceSample{}, domain.ErrNotFound
	}
	return *c.sample, nil
}

func TestPoller_SeedsFromCacheWhenUpstreamIsDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cache := &fakePriceCache{sample: &domain.PriceSample{
		PriceUSD:  48000,
		Timestamp: time.Now().Add(-time.Minute),
		Source:    domain.PriceSourceCached,
	}}

	p := NewPoller(fastClient(srv.URL), cache, nil, time.Minute, 10*time.Minute, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	// The mirrored sample must be visible even though every upstream fetch
	// fails, so a restarted daemon keeps serving the last known price.
	require.Eventually(t, func() bool {
		sample, err := p.Latest()
		return err == nil && sample.PriceUSD == 48000
	}, 2*time.Second, time.Millisecond)
}

func TestPoller_LiveFetchOverridesSeededSample(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"price": 51000, "timestamp": %d, "source": "CoinGecko", "cached": false}`, time.Now().UnixMilli())
	}))
	defer srv.Close()

	cache := &fakePriceCache{sample: &domain.PriceSample{
		PriceUSD:  48000,
		Timestamp: time.Now().Add(-time.Minute),
		Source:    domain.PriceSourceCached,
	}}

	p := NewPoller(fastClient(srv.URL), cache, nil, time.Minute, 10*time.Minute, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool {
		sample, err := p.Latest()
		return err == nil && sample.PriceUSD == 51000
	}, 2*time.Second, time.Millisecond)
}

func TestPoller_FreshRejectsStaleSample(t *testing.T) {
	old := time.Now().Add(-time.Hour).UnixMilli()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"price": 50000, "timestamp": %d, "source": "Cache", "cached": true}`, old)
	}))
	defer srv.Close()

	p := NewPoller(fastClient(srv.URL), nil, nil, time.Minute, 10*time.Minute, testLogger())
	_, err := p.Refetch(context.Background())
	require.NoError(t, err)

	_, err = p.Fresh()
	assert.True(t, errors.Is(err, domain.ErrPriceStale))
}
