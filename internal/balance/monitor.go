// Package balance polls the tipping wallet's MUSD balance and layers an
// optimistic local adjustment on top so a just-submitted transfer is
// reflected immediately instead of one poll interval later.
package balance

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/tippinbit/tippind/internal/domain"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultRepollDelay  = 1 * time.Second
)

// Reader reads the authoritative on-chain balance.
type Reader interface {
	Balance(ctx context.Context) (*big.Int, error)
}

// Monitor owns one wallet's balance snapshot. When no reader is configured
// (no wallet address available) the monitor is disabled: it never polls and
// reports the balance as unavailable, not zero.
type Monitor struct {
	reader      Reader
	interval    time.Duration
	repollDelay time.Duration
	logger      *slog.Logger

	mu         sync.Mutex
	onChain    *big.Int
	optimistic *big.Int
	polledAt   time.Time
}

// NewMonitor creates a Monitor. A nil reader produces a disabled monitor.
func NewMonitor(reader Reader, logger *slog.Logger) *Monitor {
	return &Monitor{
		reader:      reader,
		interval:    defaultPollInterval,
		repollDelay: defaultRepollDelay,
		logger:      logger.With(slog.String("component", "balance_monitor")),
	}
}

// SetPollInterval overrides the default poll cadence. Call before Run.
func (m *Monitor) SetPollInterval(d time.Duration) {
	if d > 0 {
		m.interval = d
	}
}

// Enabled reports whether the monitor has a wallet to poll.
func (m *Monitor) Enabled() bool {
	return m.reader != nil
}

// Run polls immediately and then on every interval tick. Disabled monitors
// block until the context is cancelled without issuing any requests.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.Enabled() {
		<-ctx.Done()
		return ctx.Err()
	}

	if err := m.poll(ctx); err != nil {
		m.logger.WarnContext(ctx, "initial balance poll failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("balance monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := m.poll(ctx); err != nil {
				m.logger.WarnContext(ctx, "balance poll failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Snapshot returns the current balance view.
func (m *Monitor) Snapshot() domain.BalanceSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := domain.BalanceSnapshot{
		Available: m.Enabled() && m.onChain != nil,
		PolledAt:  m.polledAt,
	}
	if m.onChain != nil {
		snap.OnChain = new(big.Int).Set(m.onChain)
	}
	if m.optimistic != nil {
		snap.Optimistic = new(big.Int).Set(m.optimistic)
	}
	return snap
}

// UpdateOptimistically reduces the displayed balance by amountSent, clamped
// at zero, then schedules a fresh poll shortly after so the chain can catch
// up.
func (m *Monitor) UpdateOptimistically(ctx context.Context, amountSent *big.Int) {
	if !m.Enabled() || amountSent == nil || amountSent.Sign() <= 0 {
		return
	}

	m.mu.Lock()
	base := m.optimistic
	if base == nil {
		base = m.onChain
	}
	if base == nil {
		m.mu.Unlock()
		return
	}
	next := new(big.Int).Sub(base, amountSent)
	if next.Sign() < 0 {
		next.SetInt64(0)
	}
	m.optimistic = next
	m.mu.Unlock()

	time.AfterFunc(m.repollDelay, func() {
		if ctx.Err() != nil {
			return
		}
		if err := m.poll(ctx); err != nil {
			m.logger.WarnContext(ctx, "post-send balance poll failed", slog.String("error", err.Error()))
		}
	})
}

// Refetch clears any optimistic override and polls immediately.
func (m *Monitor) Refetch(ctx context.Context) error {
	if !m.Enabled() {
		return nil
	}
	m.mu.Lock()
	m.optimistic = nil
	m.mu.Unlock()
	return m.poll(ctx)
}

// poll reads the authoritative balance and reconciles the optimistic
// override: once the chain value has caught up to (or passed below) the
// override, the override is dropped and the polled value wins again.
func (m *Monitor) poll(ctx context.Context) error {
	value, err := m.reader.Balance(ctx)
	if err != nil {
		return fmt.Errorf("balance: poll: %w", err)
	}

	m.mu.Lock()
	m.onChain = value
	m.polledAt = time.Now()
	if m.optimistic != nil && value.Cmp(m.optimistic) <= 0 {
		m.optimistic = nil
	}
	m.mu.Unlock()
	return nil
}
