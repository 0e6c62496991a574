package collateral

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/tippinbit/tippind/internal/domain"
)

var (
	centUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil) // 1e16, one hundredth
	btcUnit  = new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil) // 1e12, one millionth
	halfCent = new(big.Int).Mul(big.NewInt(5), new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil))
)

// FormatUSD renders a 1e18 fixed-point USD amount with thousands separators
// and exactly two decimals, rounding half-up on the hundredth.
func FormatUSD(amount *big.Int) string {
	cents := new(big.Int).Add(amount, halfCent)
	cents.Quo(cents, centUnit)

	whole := new(big.Int)
	frac := new(big.Int)
	whole.QuoRem(cents, big.NewInt(100), frac)

	return fmt.Sprintf("%s.%02d", groupThousands(whole.String()), frac.Int64())
}

// FormatBTC renders a 1e18 fixed-point BTC amount with exactly six decimals,
// zero-padded. Sub-millionth precision is floored away, matching the floor
// semantics of the collateral math.
func FormatBTC(amount *big.Int) string {
	millionths := new(big.Int).Quo(amount, btcUnit)

	whole := new(big.Int)
	frac := new(big.Int)
	whole.QuoRem(millionths, big.NewInt(1_000_000), frac)

	return fmt.Sprintf("%s.%06d", whole.String(), frac.Int64())
}

// ParseUSD converts a decimal string like "10.50" into a 1e18 fixed-point
// amount. At most 18 fractional digits are accepted; the amount must be
// non-negative.
func ParseUSD(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return nil, fmt.Errorf("collateral: parse %q: %w", s, domain.ErrInvalidInput)
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 18 {
		return nil, fmt.Errorf("collateral: parse %q: too many decimals: %w", s, domain.ErrInvalidInput)
	}
	frac += strings.Repeat("0", 18-len(frac))

	out, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok || out.Sign() < 0 {
		return nil, fmt.Errorf("collateral: parse %q: %w", s, domain.ErrInvalidInput)
	}
	return out, nil
}

// groupThousands inserts commas into a non-negative decimal integer string.
func groupThousands(s string) string {
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
