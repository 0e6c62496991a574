package domain

import (
	"math/big"
	"time"
)

// Tip is one completed transfer recorded in the journal. Amount is the MUSD
// value in 1e18 fixed point.
type Tip struct {
	ID        string    `json:"id"`
	TxHash    string    `json:"txHash"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Amount    *big.Int  `json:"-"`
	AmountStr string    `json:"amount"`
	Message   string    `json:"message,omitempty"`
	Borrowed  bool      `json:"borrowed"`
	CreatedAt time.Time `json:"createdAt"`
}

// BalanceSnapshot pairs the authoritative on-chain balance with an optional
// optimistic override applied after a submitted transfer. The displayed value
// is the override when present, the on-chain value otherwise, and nil when the
// monitor is disabled.
type BalanceSnapshot struct {
	OnChain    *big.Int
	Optimistic *big.Int
	Available  bool
	PolledAt   time.Time
}

// Displayed returns the balance the UI should show: the optimistic override
// when one is in effect, the polled value otherwise.
func (s BalanceSnapshot) Displayed() *big.Int {
	if s.Optimistic != nil {
		return s.Optimistic
	}
	return s.OnChain
}
