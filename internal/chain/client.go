// Package chain wraps the Ethereum JSON-RPC client with the handful of
// calls the tipping wallet needs: an ERC-20 balance read and approval, and
// the two vault writes of the borrowing flow. Transactions are EIP-1559,
// signed locally with the daemon's wallet key.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/tippinbit/tippind/internal/borrow"
)

const receiptPollInterval = 2 * time.Second

// Config holds connection and contract parameters.
type Config struct {
	RPCURL          string
	ChainID         int64
	PrivateKey      string // hex, with or without 0x prefix
	MUSDToken       string
	CollateralToken string
	VaultAddress    string
}

// Client is the concrete chain access layer. It implements
// borrow.ChainWriter and the balance monitor's Reader.
type Client struct {
	eth     *ethclient.Client
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	logger  *slog.Logger

	musd       common.Address
	collateral common.Address
	vault      common.Address
}

// Dial connects to the RPC endpoint and derives the wallet address from the
// configured private key.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("chain: invalid private key: %w", err)
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}

	return &Client{
		eth:        eth,
		key:        key,
		from:       ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID:    big.NewInt(cfg.ChainID),
		logger:     logger.With(slog.String("component", "chain")),
		musd:       common.HexToAddress(cfg.MUSDToken),
		collateral: common.HexToAddress(cfg.CollateralToken),
		vault:      common.HexToAddress(cfg.VaultAddress),
	}, nil
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// WalletAddress returns the checksummed daemon wallet address.
func (c *Client) WalletAddress() string {
	return c.from.Hex()
}

// call performs a read-only contract call.
func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.eth.CallContract(ctx, ethereum.CallMsg{
		From: c.from,
		To:   &to,
		Data: data,
	}, nil)
}

// submit estimates gas, signs and broadcasts an EIP-1559 transaction, and
// returns its hash.
func (c *Client) submit(ctx context.Context, to common.Address, data []byte) (string, error) {
	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return "", fmt.Errorf("chain: nonce: %w", err)
	}

	tipCap, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return "", fmt.Errorf("chain: gas tip cap: %w", err)
	}
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("chain: head: %w", err)
	}
	feeCap := new(big.Int).Add(tipCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From: c.from,
		To:   &to,
		Data: data,
	})
	if err != nil {
		return "", fmt.Errorf("chain: estimate gas: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gas + gas/5, // headroom over the estimate
		To:        &to,
		Data:      data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return "", fmt.Errorf("chain: sign tx: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("chain: send tx: %w", err)
	}

	c.logger.InfoContext(ctx, "transaction submitted",
		slog.String("tx_hash", signed.Hash().Hex()),
		slog.String("to", to.Hex()),
	)
	return signed.Hash().Hex(), nil
}

// WaitConfirmed polls for the transaction receipt until one confirmation is
// observed or the context ends. A failed receipt surfaces as a revert so the
// flow classifies it as a contract error.
func (c *Client) WaitConfirmed(ctx context.Context, txHash string) (borrow.TxReceipt, error) {
	hash := common.HexToHash(txHash)

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		rcpt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			if rcpt.Status == types.ReceiptStatusFailed {
				return borrow.TxReceipt{}, fmt.Errorf("chain: execution reverted in tx %s", txHash)
			}
			return borrow.TxReceipt{
				Hash:        txHash,
				BlockNumber: rcpt.BlockNumber.Uint64(),
			}, nil
		}
		if err != ethereum.NotFound {
			c.logger.WarnContext(ctx, "receipt poll failed",
				slog.String("tx_hash", txHash),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return borrow.TxReceipt{}, fmt.Errorf("chain: wait for %s: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Compile-time interface check.
var _ borrow.ChainWriter = (*Client)(nil)
