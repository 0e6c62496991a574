package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// BorrowingVault call surface.
var (
	depositAndMintArgs  = abi.Arguments{{Type: uint256Ty}, {Type: uint256Ty}}
	executeTransferArgs = abi.Arguments{
		{Type: uint256Ty}, {Type: addressTy}, {Type: uint256Ty}, {Type: stringTy},
	}

	depositAndMintSel  = selector("depositAndMint(uint256,uint256)")
	executeTransferSel = selector("executeTransfer(uint256,address,uint256,string)")
)

// DepositAndMint locks the collateral and mints the tip amount of MUSD
// against it.
func (c *Client) DepositAndMint(ctx context.Context, collateralAmount, tipAmount *big.Int) (string, error) {
	data, err := depositAndMintArgs.Pack(collateralAmount, tipAmount)
	if err != nil {
		return "", fmt.Errorf("chain: pack depositAndMint: %w", err)
	}
	return c.submit(ctx, c.vault, append(append([]byte{}, depositAndMintSel...), data...))
}

// ExecuteTransfer sends the minted MUSD from the position to the recipient.
// The position id was validated upstream as unsigned decimal digits.
func (c *Client) ExecuteTransfer(ctx context.Context, positionID, recipient string, amount *big.Int, message string) (string, error) {
	pos, ok := new(big.Int).SetString(positionID, 10)
	if !ok || pos.Sign() < 0 {
		return "", fmt.Errorf("chain: invalid position id %q", positionID)
	}
	if !common.IsHexAddress(recipient) {
		return "", fmt.Errorf("chain: invalid recipient address %q", recipient)
	}

	data, err := executeTransferArgs.Pack(pos, common.HexToAddress(recipient), amount, message)
	if err != nil {
		return "", fmt.Errorf("chain: pack executeTransfer: %w", err)
	}
	return c.submit(ctx, c.vault, append(append([]byte{}, executeTransferSel...), data...))
}
