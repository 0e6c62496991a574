package borrow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		msg  string
		want Classification
	}{
		{"User rejected the request", UserRejected},
		{"MetaMask Tx Signature: User denied transaction signature", UserRejected},
		{"insufficient funds for gas * price + value", InsufficientGas},
		{"intrinsic gas too low", InsufficientGas},
		{"ERC20: insufficient balance for transfer", InsufficientBalance},
		{"Network request failed", NetworkError},
		{"RPC endpoint returned 503", NetworkError},
		{"request TIMEOUT after 30s", NetworkError},
		{"execution reverted: vault is paused", ContractError},
		{"transaction would revert", ContractError},
		{"something inexplicable", Unknown},
	}
	for _, tc := range cases {
		got := Classify(errors.New(tc.msg), StepDeposit)
		assert.Equal(t, tc.want, got.Classification, "message %q", tc.msg)
		assert.Equal(t, StepDeposit, got.Step)
	}
}

func TestRetryable_OnlyUserRejectionIsFinal(t *testing.T) {
	rej := Classify(errors.New("user rejected"), StepApprove)
	assert.False(t, rej.Retryable())

	for _, msg := range []string{"insufficient funds", "rpc down", "execution reverted", "???"} {
		e := Classify(errors.New(msg), StepApprove)
		assert.True(t, e.Retryable(), "message %q", msg)
	}

	fatal := &Error{Underlying: errors.New("vault address missing"), Classification: Unknown, Step: StepApprove, Fatal: true}
	assert.False(t, fatal.Retryable())
}

func TestHint_ExtractsRevertReason(t *testing.T) {
	e := Classify(errors.New("execution reverted: collateral ratio below minimum"), StepDeposit)
	assert.Contains(t, e.Hint(), "collateral ratio below minimum")

	// No decodable reason falls back to the funds-are-safe wording.
	bare := Classify(errors.New("transaction revert"), StepDeposit)
	assert.Contains(t, bare.Hint(), "funds are safe")
}

func TestHint_NeverBareTechnical(t *testing.T) {
	for _, msg := range []string{"user rejected", "insufficient funds", "insufficient balance", "rpc error", "weird"} {
		e := Classify(errors.New(msg), StepTransfer)
		assert.NotEmpty(t, e.Hint(), "message %q", msg)
		assert.NotEqual(t, msg, e.Hint())
	}
}
