package borrow

import (
	"fmt"
	"regexp"
	"strings"
)

// Classification buckets whatever the call layer threw into a category the
// UI can act on.
type Classification string

const (
	UserRejected        Classification = "user_rejected"
	InsufficientGas     Classification = "insufficient_gas"
	InsufficientBalance Classification = "insufficient_balance"
	NetworkError        Classification = "network_error"
	ContractError       Classification = "contract_error"
	Unknown             Classification = "unknown"
)

// Error is a classified flow error. Retryable is false only for user
// rejections; everything else may be retried, manually or automatically
// depending on the step.
type Error struct {
	Underlying     error
	Classification Classification
	Step           Step
	Fatal          bool // precondition/config failures that retrying cannot fix
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("borrow: step %d (%s): %s: %v", e.Step, e.Step, e.Classification, e.Underlying)
}

// Unwrap exposes the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// Retryable reports whether offering a retry makes sense.
func (e *Error) Retryable() bool {
	return e.Classification != UserRejected && !e.Fatal
}

// Classify inspects the error text case-insensitively for known substrings.
// Order matters: "insufficient balance" must win over the broader
// "insufficient funds"/gas match.
func Classify(err error, step Step) *Error {
	msg := strings.ToLower(err.Error())

	var c Classification
	switch {
	case strings.Contains(msg, "user rejected") || strings.Contains(msg, "user denied"):
		c = UserRejected
	case strings.Contains(msg, "insufficient balance"):
		c = InsufficientBalance
	case strings.Contains(msg, "insufficient funds") || strings.Contains(msg, "gas"):
		c = InsufficientGas
	case strings.Contains(msg, "network") || strings.Contains(msg, "rpc") || strings.Contains(msg, "timeout"):
		c = NetworkError
	case strings.Contains(msg, "revert"):
		c = ContractError
	default:
		c = Unknown
	}

	return &Error{
		Underlying:     err,
		Classification: c,
		Step:           step,
	}
}

// Hint returns a plain-language next action for the classification. Errors
// are never surfaced as bare technical strings.
func (e *Error) Hint() string {
	if e.Fatal {
		return "Borrowing is not available right now. Send MUSD directly instead."
	}
	switch e.Classification {
	case UserRejected:
		return "The transaction was declined in the wallet. Start again when ready."
	case InsufficientGas:
		return "The wallet needs gas to submit transactions. Top it up from a faucet and retry."
	case InsufficientBalance:
		return "Not enough BTC to lock as collateral. Lower the tip or send MUSD directly."
	case NetworkError:
		return "The network request failed. Check connectivity and retry."
	case ContractError:
		if reason := revertReason(e.Underlying); reason != "" {
			return "The contract rejected the transaction: " + reason
		}
		return "The transaction failed on-chain. Your funds are safe; retry in a moment."
	default:
		return "Something went wrong. Your funds are safe; retry in a moment."
	}
}

var revertReasonRe = regexp.MustCompile(`(?i)(?:execution )?reverted:?\s*([^"]{1,120})`)

// revertReason makes a best-effort extraction of a human-readable revert
// string from the error text.
func revertReason(err error) string {
	m := revertReasonRe.FindStringSubmatch(err.Error())
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}
