package domain

import (
	"context"
	"time"
)

// UsernameStore is the persistent registry of claimed usernames.
type UsernameStore interface {
	// Claim atomically records a username if it is not already taken. It
	// returns ErrAlreadyExists when another wallet holds the name.
	Claim(ctx context.Context, claim ClaimedUsername) error
	// Get returns the record for a normalized username, or ErrNotFound.
	Get(ctx context.Context, username string) (ClaimedUsername, error)
}

// TipStore is the append-only journal of completed tips.
type TipStore interface {
	Insert(ctx context.Context, tip Tip) error
	GetByID(ctx context.Context, id string) (Tip, error)
	ListRecent(ctx context.Context, limit, offset int) ([]Tip, error)
	Count(ctx context.Context) (int64, error)
}

// PriceCache stores the most recent BTC/USD sample for the public price
// endpoint.
type PriceCache interface {
	SetSample(ctx context.Context, sample PriceSample) error
	GetSample(ctx context.Context) (PriceSample, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus provides pub/sub fan-out of server events (price updates, flow
// transitions, completed tips) to interested consumers such as the WebSocket
// hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
