// Package collateral implements the fixed-point math for BTC-collateralized
// tips. All quantities are *big.Int scaled by 1e18; every product of two
// scaled values is divided by 1e18 exactly once to cancel the extra scale
// factor. Division is floor division throughout, so inverse operations may
// differ from their mathematical inverse by one minimal unit.
package collateral

import "math/big"

// Scale is the 1e18 fixed-point scale factor shared with on-chain token math.
var Scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Config carries the protocol ratios and freshness threshold. It is built
// once at startup and injected; nothing mutates it afterwards.
type Config struct {
	// MinRatioBps is the protocol minimum collateral ratio in basis points.
	MinRatioBps int64
	// TargetRatioBps is the ratio the product aims for, above the minimum.
	TargetRatioBps int64
	// SafetyBufferBps is the extra margin applied on top of the target,
	// expressed in basis points of 1.0 (10500 = 1.05x).
	SafetyBufferBps int64
}

// DefaultConfig returns the production ratios: 200% protocol minimum, 205%
// target, 1.05x buffer, for an effective ratio of 215.25%.
func DefaultConfig() Config {
	return Config{
		MinRatioBps:     20000,
		TargetRatioBps:  20500,
		SafetyBufferBps: 10500,
	}
}

// EffectiveRatioScaled returns the applied ratio (target * buffer) in 1e18
// fixed point: floor(2.1525 * 1e18) for the default config.
func (c Config) EffectiveRatioScaled() *big.Int {
	// target/1e4 * buffer/1e4 * 1e18 == target * buffer * 1e10
	r := new(big.Int).Mul(big.NewInt(c.TargetRatioBps), big.NewInt(c.SafetyBufferBps))
	return r.Mul(r, new(big.Int).Exp(big.NewInt(10), big.NewInt(10), nil))
}

// RequiredCollateral returns the BTC amount (1e18 fixed point) that must be
// locked to borrow tipAmount MUSD at the given BTC/USD price. It is exactly
// zero for a zero tip. The caller guarantees btcPriceScaled > 0.
func (c Config) RequiredCollateral(tipAmount, btcPriceScaled *big.Int) *big.Int {
	if tipAmount.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(tipAmount, c.EffectiveRatioScaled())
	return out.Quo(out, btcPriceScaled)
}

// MaxTipFromCollateral returns the largest MUSD tip (1e18 fixed point) that
// btcBalance can collateralize at the given price. It is zero for a zero
// balance.
func (c Config) MaxTipFromCollateral(btcBalance, btcPriceScaled *big.Int) *big.Int {
	if btcBalance.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(btcBalance, btcPriceScaled)
	return out.Quo(out, c.EffectiveRatioScaled())
}

// MinimumBTCRequired returns the BTC needed to borrow a notional $1 tip at
// the given whole-dollar BTC price. It gates whether the borrowing path is
// offered at all.
func (c Config) MinimumBTCRequired(btcPriceUSD int64) *big.Int {
	price := new(big.Int).Mul(big.NewInt(btcPriceUSD), Scale)
	return c.RequiredCollateral(new(big.Int).Set(Scale), price)
}
