package domain

import "time"

// ClaimedUsername is a payment handle bound to a wallet address. The name is
// stored in normalized form (lowercase, no leading "@"); lookups for "@alice"
// and "alice" resolve to the same record.
type ClaimedUsername struct {
	Username        string    `json:"username"`
	WalletAddress   string    `json:"walletAddress"`
	ClaimedAt       time.Time `json:"claimedAt"`
	ThankYouMessage string    `json:"thankyouMessage,omitempty"`
}
