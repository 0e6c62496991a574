package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tippinbit/tippind/internal/domain"
)

// UsernameStore implements domain.UsernameStore. Each claim is a JSON blob
// stored at "username:{name}" via SETNX, so the first writer wins and a name
// can never be reassigned.
type UsernameStore struct {
	rdb *redis.Client
}

// NewUsernameStore creates a UsernameStore backed by the given Client.
func NewUsernameStore(c *Client) *UsernameStore {
	return &UsernameStore{rdb: c.Underlying()}
}

func usernameKey(name string) string {
	return "username:" + name
}

// Claim records a claim if the name is free. It returns
// domain.ErrAlreadyExists when another wallet already holds the name.
func (us *UsernameStore) Claim(ctx context.Context, claim domain.ClaimedUsername) error {
	payload, err := json.Marshal(claim)
	if err != nil {
		return fmt.Errorf("redis: marshal claim %s: %w", claim.Username, err)
	}

	set, err := us.rdb.SetNX(ctx, usernameKey(claim.Username), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("redis: claim %s: %w", claim.Username, err)
	}
	if !set {
		return domain.ErrAlreadyExists
	}
	return nil
}

// Get returns the claim for a normalized name, or domain.ErrNotFound.
func (us *UsernameStore) Get(ctx context.Context, name string) (domain.ClaimedUsername, error) {
	payload, err := us.rdb.Get(ctx, usernameKey(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ClaimedUsername{}, domain.ErrNotFound
		}
		return domain.ClaimedUsername{}, fmt.Errorf("redis: get username %s: %w", name, err)
	}

	var claim domain.ClaimedUsername
	if err := json.Unmarshal(payload, &claim); err != nil {
		return domain.ClaimedUsername{}, fmt.Errorf("redis: unmarshal username %s: %w", name, err)
	}
	return claim, nil
}

// Compile-time interface check.
var _ domain.UsernameStore = (*UsernameStore)(nil)
