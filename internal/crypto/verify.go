// Package crypto verifies the personal-message signatures that authenticate
// username claims. Every signed action uses the fixed message shape
// "I {action} on TippinBit".
package crypto

import (
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ActionMessage builds the canonical message for a signed action, e.g.
// ActionMessage(`am claiming @alice`) == "I am claiming @alice on TippinBit".
func ActionMessage(action string) string {
	return "I " + action + " on TippinBit"
}

// VerifyPersonalSignature checks that signature is a valid EIP-191
// personal-message signature of message by expectedAddress. The expected
// address is normalized to its canonical checksummed form before comparison.
// Malformed signatures or addresses yield false, never an error or panic.
func VerifyPersonalSignature(message, signature, expectedAddress string) bool {
	if !common.IsHexAddress(expectedAddress) {
		return false
	}

	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != 65 {
		return false
	}

	// Wallets emit v in {27, 28}; go-ethereum recovery wants {0, 1}.
	sig = append([]byte(nil), sig...)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return false
	}

	digest := accounts.TextHash([]byte(message))
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return false
	}

	recovered := ethcrypto.PubkeyToAddress(*pub)
	return recovered == common.HexToAddress(expectedAddress)
}
