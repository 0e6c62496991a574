// Package payurl builds shareable payment links for usernames and raw
// wallet addresses.
package payurl

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tippinbit/tippind/internal/domain"
)

// Options carries the optional query parameters of a payment link. Zero
// values are omitted from the URL.
type Options struct {
	// AmountUSD is a decimal string such as "10" or "2.50".
	AmountUSD string
	Message   string
}

// ForUsername builds a path-style link, e.g. "/pay/@alice?amount=10".
// The username is expected to be already normalized.
func ForUsername(base, name string, opts Options) (string, error) {
	if name == "" {
		return "", fmt.Errorf("payurl: empty username: %w", domain.ErrInvalidInput)
	}
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("payurl: parse base: %w", err)
	}
	u.Path += "/pay/@" + name
	u.RawQuery = encodeOptions(opts, nil)
	return u.String(), nil
}

// ForAddress builds a query-style link for wallets without a claimed
// username, e.g. "/pay?to=0xabc...&amount=10".
func ForAddress(base, addr string, opts Options) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("payurl: invalid wallet address: %w", domain.ErrInvalidInput)
	}
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("payurl: parse base: %w", err)
	}
	u.Path += "/pay"
	u.RawQuery = encodeOptions(opts, func(q url.Values) {
		q.Set("to", common.HexToAddress(addr).Hex())
	})
	return u.String(), nil
}

func encodeOptions(opts Options, pre func(url.Values)) string {
	q := url.Values{}
	if pre != nil {
		pre(q)
	}
	if opts.AmountUSD != "" {
		q.Set("amount", opts.AmountUSD)
	}
	if msg := strings.TrimSpace(opts.Message); msg != "" {
		q.Set("message", msg)
	}
	return q.Encode()
}
