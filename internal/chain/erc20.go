package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Minimal hand-built ABI surface; the daemon only ever calls these four
// functions, so generated bindings would be overkill.
var (
	addressTy = mustType("address")
	uint256Ty = mustType("uint256")
	stringTy  = mustType("string")

	balanceOfArgs = abi.Arguments{{Type: addressTy}}
	approveArgs   = abi.Arguments{{Type: addressTy}, {Type: uint256Ty}}

	balanceOfSel = selector("balanceOf(address)")
	approveSel   = selector("approve(address,uint256)")
)

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

// selector returns the 4-byte function selector for a canonical signature.
func selector(signature string) []byte {
	return ethcrypto.Keccak256([]byte(signature))[:4]
}

// Balance reads the wallet's MUSD balance. It satisfies the balance
// monitor's Reader interface.
func (c *Client) Balance(ctx context.Context) (*big.Int, error) {
	return c.erc20Balance(ctx, c.musd, c.from)
}

// ApproveCollateral approves the vault to pull the given collateral amount
// from the wallet's BTC token balance.
func (c *Client) ApproveCollateral(ctx context.Context, amount *big.Int) (string, error) {
	data, err := approveArgs.Pack(c.vault, amount)
	if err != nil {
		return "", fmt.Errorf("chain: pack approve: %w", err)
	}
	return c.submit(ctx, c.collateral, append(append([]byte{}, approveSel...), data...))
}

// CollateralBalance reads the wallet's BTC collateral token balance, used to
// size the maximum borrowable tip.
func (c *Client) CollateralBalance(ctx context.Context) (*big.Int, error) {
	return c.erc20Balance(ctx, c.collateral, c.from)
}

// erc20Balance reads a token balance for a holder.
func (c *Client) erc20Balance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	data, err := balanceOfArgs.Pack(holder)
	if err != nil {
		return nil, fmt.Errorf("chain: pack balanceOf: %w", err)
	}
	out, err := c.call(ctx, token, append(append([]byte{}, balanceOfSel...), data...))
	if err != nil {
		return nil, fmt.Errorf("chain: balanceOf: %w", err)
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("chain: balanceOf: short return (%d bytes)", len(out))
	}
	return new(big.Int).SetBytes(out[:32]), nil
}
