// Package borrow drives the three-step BTC-collateral borrowing flow:
// approve collateral, deposit and mint, execute the transfer. Steps run
// strictly in order; steps two and three retry automatically with backoff,
// step one never does.
package borrow

import (
	"time"
)

// Step identifies one of the three on-chain steps.
type Step int

const (
	StepApprove  Step = 1
	StepDeposit  Step = 2
	StepTransfer Step = 3
)

// String returns the step's display name.
func (s Step) String() string {
	switch s {
	case StepApprove:
		return "approve"
	case StepDeposit:
		return "deposit"
	case StepTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// State is the flow's tagged state. Exactly one variant is current at any
// time; illegal combinations (a confirming transfer without a position id,
// for example) cannot be constructed.
type State interface {
	isState()
}

// Idle means no flow has started.
type Idle struct{}

// Preparing means the step's transaction is being built and submitted.
type Preparing struct {
	Step Step
}

// Confirming means the transaction was broadcast and the flow is waiting for
// one confirmation.
type Confirming struct {
	Step    Step
	TxHash  string
	Attempt int
}

// StepDone records a finished step. PositionID is set only after the deposit
// step.
type StepDone struct {
	Step       Step
	TxHash     string
	PositionID string
}

// Complete is the terminal success state.
type Complete struct {
	TxHash      string
	CompletedAt time.Time
}

// Failed is the terminal error state for the current run. A manual retry
// re-dispatches the failed step.
type Failed struct {
	Err *Error
}

func (Idle) isState()       {}
func (Preparing) isState()  {}
func (Confirming) isState() {}
func (StepDone) isState()   {}
func (Complete) isState()   {}
func (Failed) isState()     {}

// Status is the JSON-friendly projection of a flow handed to API consumers.
type Status struct {
	ID             string     `json:"id"`
	State          string     `json:"state"`
	Step           int        `json:"step,omitempty"`
	Attempt        int        `json:"attempt,omitempty"`
	TxHash         string     `json:"txHash,omitempty"`
	PositionID     string     `json:"positionId,omitempty"`
	CompletedSteps []int      `json:"completedSteps"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	Error          *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo is the wire form of a classified flow error.
type ErrorInfo struct {
	Classification Classification `json:"classification"`
	Step           int            `json:"step"`
	Retryable      bool           `json:"retryable"`
	Message        string         `json:"message"`
	Hint           string         `json:"hint,omitempty"`
}
