package borrow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tippinbit/tippind/internal/collateral"
	"github.com/tippinbit/tippind/internal/domain"
)

// ChannelFlowUpdates is the signal-bus channel carrying flow state changes.
const ChannelFlowUpdates = "borrow_updates"

// ChannelTips is the signal-bus channel carrying completed tips.
const ChannelTips = "tips"

// zeroAddress is the unconfigured-contract placeholder.
const zeroAddress = "0x0000000000000000000000000000000000000000"

// BalanceUpdater receives the optimistic decrement once the final transfer
// is submitted.
type BalanceUpdater interface {
	UpdateOptimistically(ctx context.Context, amountSent *big.Int)
}

// Notifier delivers operator notifications for completed tips.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds the manager's contract addresses. Both must be configured
// (non-placeholder) before any flow may start.
type Config struct {
	CollateralToken string
	VaultAddress    string
	// WalletAddress is the daemon wallet recorded as the tip sender.
	WalletAddress string
}

// configured reports whether an address is present and not the zero
// placeholder.
func configured(addr string) bool {
	addr = strings.TrimSpace(addr)
	return addr != "" && !strings.EqualFold(addr, zeroAddress)
}

// Manager creates and owns borrowing flows. Flow goroutines are bound to the
// manager's own context so they outlive the HTTP request that started them;
// like the page sessions they replace, they do not survive a restart.
type Manager struct {
	cfg    Config
	calc   collateral.Config
	prices PriceSource
	writer ChainWriter
	policy RetryPolicy

	tips     domain.TipStore
	bus      domain.SignalBus
	notifier Notifier
	balances BalanceUpdater
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	flows map[string]*Flow
}

// PriceSource supplies a fresh (non-stale) price sample for collateral
// sizing.
type PriceSource interface {
	Fresh() (domain.PriceSample, error)
}

// NewManager creates a Manager. tips, bus, notifier and balances are
// optional; absent dependencies skip the corresponding completion side
// effect.
func NewManager(cfg Config, calc collateral.Config, prices PriceSource, writer ChainWriter, policy RetryPolicy,
	tips domain.TipStore, bus domain.SignalBus, notifier Notifier, balances BalanceUpdater, logger *slog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		calc:     calc,
		prices:   prices,
		writer:   writer,
		policy:   policy,
		tips:     tips,
		bus:      bus,
		notifier: notifier,
		balances: balances,
		logger:   logger.With(slog.String("component", "borrow_manager")),
		ctx:      ctx,
		cancel:   cancel,
		flows:    make(map[string]*Flow),
	}
}

// Enabled reports whether both contract addresses are configured.
func (m *Manager) Enabled() bool {
	return configured(m.cfg.CollateralToken) && configured(m.cfg.VaultAddress)
}

// Start sizes the collateral from the current price and launches a new flow.
// It fails fast, before any on-chain call, when the contracts are not
// configured or no fresh price is available.
func (m *Manager) Start(tipAmount *big.Int, recipient, message string) (Status, error) {
	if !m.Enabled() {
		return Status{}, fmt.Errorf("borrow: %w", domain.ErrBorrowingDisabled)
	}
	if tipAmount == nil || tipAmount.Sign() <= 0 {
		return Status{}, fmt.Errorf("borrow: tip amount must be positive: %w", domain.ErrInvalidInput)
	}

	sample, err := m.prices.Fresh()
	if err != nil {
		return Status{}, fmt.Errorf("borrow: price: %w", err)
	}

	req := Request{
		TipAmount:  tipAmount,
		Collateral: m.calc.RequiredCollateral(tipAmount, sample.PriceScaled),
		Recipient:  recipient,
		Message:    message,
	}

	flow := NewFlow(uuid.NewString(), req, m.writer, m.policy, m.logger)
	flow.onUpdate = m.publishUpdate
	flow.onComplete = m.recordCompletion
	if m.balances != nil {
		flow.onTransferSubmitted = func() {
			m.balances.UpdateOptimistically(m.ctx, req.TipAmount)
		}
	}

	m.mu.Lock()
	m.flows[flow.ID] = flow
	m.mu.Unlock()

	if err := flow.Start(m.ctx); err != nil {
		return Status{}, err
	}

	m.logger.Info("borrow flow started",
		slog.String("flow_id", flow.ID),
		slog.String("recipient", recipient),
		slog.String("tip", collateral.FormatUSD(tipAmount)),
		slog.String("collateral_btc", collateral.FormatBTC(req.Collateral)),
	)
	return flow.Snapshot(), nil
}

// Get returns the status of a flow, or ErrNotFound.
func (m *Manager) Get(id string) (Status, error) {
	flow, err := m.flow(id)
	if err != nil {
		return Status{}, err
	}
	return flow.Snapshot(), nil
}

// Retry re-dispatches the failed step of a flow.
func (m *Manager) Retry(id string) (Status, error) {
	flow, err := m.flow(id)
	if err != nil {
		return Status{}, err
	}
	if err := flow.Retry(m.ctx); err != nil {
		return Status{}, err
	}
	return flow.Snapshot(), nil
}

// Cancel stops a flow from progressing. Already-confirmed steps are not
// reversed.
func (m *Manager) Cancel(id string) (Status, error) {
	flow, err := m.flow(id)
	if err != nil {
		return Status{}, err
	}
	flow.Cancel()
	return flow.Snapshot(), nil
}

// Close cancels all running flows.
func (m *Manager) Close() {
	m.cancel()
}

func (m *Manager) flow(id string) (*Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	flow, ok := m.flows[id]
	if !ok {
		return nil, fmt.Errorf("borrow: flow %s: %w", id, domain.ErrNotFound)
	}
	return flow, nil
}

func (m *Manager) publishUpdate(st Status) {
	if m.bus == nil {
		return
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := m.bus.Publish(m.ctx, ChannelFlowUpdates, payload); err != nil {
		m.logger.Warn("flow update publish failed", slog.String("error", err.Error()))
	}
}

// recordCompletion journals the tip, announces it, and notifies operators.
func (m *Manager) recordCompletion(res Result) {
	ctx := m.ctx

	tip := domain.Tip{
		ID:        res.FlowID,
		TxHash:    res.TxHash,
		Sender:    m.cfg.WalletAddress,
		Recipient: res.Recipient,
		Amount:    res.TipAmount,
		AmountStr: res.TipAmount.String(),
		Message:   res.Message,
		Borrowed:  true,
		CreatedAt: res.CompletedAt,
	}

	if m.tips != nil {
		if err := m.tips.Insert(ctx, tip); err != nil {
			m.logger.ErrorContext(ctx, "tip journal insert failed",
				slog.String("flow_id", res.FlowID),
				slog.String("error", err.Error()),
			)
		}
	}

	if m.bus != nil {
		if payload, err := json.Marshal(tip); err == nil {
			if err := m.bus.Publish(ctx, ChannelTips, payload); err != nil {
				m.logger.Warn("tip publish failed", slog.String("error", err.Error()))
			}
		}
	}

	if m.notifier != nil {
		title := "Tip sent"
		body := fmt.Sprintf("%s MUSD to %s (borrowed against %s BTC)",
			collateral.FormatUSD(res.TipAmount), res.Recipient, collateral.FormatBTC(res.Collateral))
		if err := m.notifier.Notify(ctx, "tip_completed", title, body); err != nil {
			m.logger.Warn("tip notification failed", slog.String("error", err.Error()))
		}
	}

	m.logger.InfoContext(ctx, "borrow flow complete",
		slog.String("flow_id", res.FlowID),
		slog.String("tx_hash", res.TxHash),
		slog.String("position_id", res.PositionID),
	)
}
