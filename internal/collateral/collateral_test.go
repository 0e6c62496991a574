package collateral

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usd(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), Scale)
}

func TestEffectiveRatioScaled(t *testing.T) {
	cfg := DefaultConfig()

	// 2.05 * 1.05 = 2.1525
	want, _ := new(big.Int).SetString("2152500000000000000", 10)
	assert.Equal(t, want, cfg.EffectiveRatioScaled())
}

func TestRequiredCollateral_ZeroTip(t *testing.T) {
	cfg := DefaultConfig()

	got := cfg.RequiredCollateral(new(big.Int), usd(50_000))
	assert.Zero(t, got.Sign())
}

func TestRequiredCollateral_TenDollarTip(t *testing.T) {
	cfg := DefaultConfig()

	// $10 at $50,000/BTC needs 10 * 2.1525 / 50000 = 0.0004305 BTC.
	got := cfg.RequiredCollateral(usd(10), usd(50_000))

	want, _ := new(big.Int).SetString("430500000000000", 10) // 0.0004305e18
	assert.Equal(t, want, got)
}

func TestRequiredCollateral_Monotonic(t *testing.T) {
	cfg := DefaultConfig()
	price := usd(50_000)

	prev := cfg.RequiredCollateral(usd(1), price)
	for _, tip := range []int64{2, 10, 100, 5_000} {
		cur := cfg.RequiredCollateral(usd(tip), price)
		assert.True(t, cur.Cmp(prev) >= 0, "collateral must not decrease as tip grows")
		prev = cur
	}

	// For a fixed tip, a higher BTC price requires less collateral.
	low := cfg.RequiredCollateral(usd(100), usd(30_000))
	high := cfg.RequiredCollateral(usd(100), usd(100_000))
	assert.True(t, high.Cmp(low) < 0)
}

func TestRequiredCollateral_RatioHolds(t *testing.T) {
	cfg := DefaultConfig()

	tip := usd(100)
	price := usd(50_000)
	coll := cfg.RequiredCollateral(tip, price)

	// Collateral value in USD divided by tip value should be ~2.1525 to four
	// decimal places.
	value := new(big.Int).Mul(coll, price)
	value.Quo(value, Scale)

	ratio := new(big.Rat).SetFrac(value, tip)
	want := new(big.Rat).SetFrac64(21525, 10000)
	diff := new(big.Rat).Sub(ratio, want)
	diff.Abs(diff)
	assert.True(t, diff.Cmp(new(big.Rat).SetFrac64(1, 10000)) < 0,
		"ratio %s deviates from 2.1525", ratio.FloatString(6))
}

func TestRoundTrip_WithinOneUnit(t *testing.T) {
	cfg := DefaultConfig()

	tips := []*big.Int{}
	cent, _ := new(big.Int).SetString("10000000000000000", 10) // $0.01
	tips = append(tips, cent, usd(1), usd(100), usd(1_000_000))

	one := big.NewInt(1)
	for _, tip := range tips {
		for _, p := range []int64{30_000, 50_000, 100_000} {
			price := usd(p)
			coll := cfg.RequiredCollateral(tip, price)
			back := cfg.MaxTipFromCollateral(coll, price)

			diff := new(big.Int).Sub(tip, back)
			diff.Abs(diff)
			// Floor division truncates, so the round-trip may lose up to one
			// minimal unit but must never gain value.
			assert.True(t, diff.Cmp(one) <= 0,
				"round-trip of %s at price %d moved by %s units", tip, p, diff)
			assert.True(t, back.Cmp(tip) <= 0)
		}
	}
}

func TestMaxTipFromCollateral_ZeroBalance(t *testing.T) {
	cfg := DefaultConfig()
	assert.Zero(t, cfg.MaxTipFromCollateral(new(big.Int), usd(50_000)).Sign())
}

func TestMinimumBTCRequired(t *testing.T) {
	cfg := DefaultConfig()

	// $1 at $50,000/BTC: 2.1525 / 50000 = 0.00004305 BTC.
	got := cfg.MinimumBTCRequired(50_000)
	want, _ := new(big.Int).SetString("43050000000000", 10)
	require.Equal(t, want, got)
}
