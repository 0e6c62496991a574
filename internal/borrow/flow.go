package borrow

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/tippinbit/tippind/internal/domain"
)

// TxReceipt is the confirmation result of a submitted transaction.
type TxReceipt struct {
	Hash        string
	BlockNumber uint64
}

// ChainWriter submits the flow's on-chain writes. Submission and
// confirmation are separate so the flow can expose a per-step confirming
// state keyed to the transaction hash.
type ChainWriter interface {
	ApproveCollateral(ctx context.Context, amount *big.Int) (txHash string, err error)
	DepositAndMint(ctx context.Context, collateralAmount, tipAmount *big.Int) (txHash string, err error)
	ExecuteTransfer(ctx context.Context, positionID, recipient string, amount *big.Int, message string) (txHash string, err error)
	WaitConfirmed(ctx context.Context, txHash string) (TxReceipt, error)
}

// RetryPolicy bounds the automatic retries of the deposit and transfer
// steps. The approve step always gets exactly one attempt per dispatch.
type RetryPolicy struct {
	Attempts int
	Delays   []time.Duration // delay before attempt n+1; last entry repeats
}

// DefaultRetryPolicy is three attempts with 1s/2s/4s gaps.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 3,
		Delays:   []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
	}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	if len(p.Delays) == 0 {
		return time.Second
	}
	if attempt-1 < len(p.Delays) {
		return p.Delays[attempt-1]
	}
	return p.Delays[len(p.Delays)-1]
}

// Request is everything a flow run needs. Amounts are 1e18 fixed point.
type Request struct {
	TipAmount  *big.Int
	Collateral *big.Int
	Recipient  string
	Message    string
}

// Result describes a completed flow.
type Result struct {
	FlowID      string
	TxHash      string
	PositionID  string
	TipAmount   *big.Int
	Collateral  *big.Int
	Recipient   string
	Message     string
	CompletedAt time.Time
}

// Flow is a single borrowing run. Steps execute strictly in order; a step
// never starts before the previous one's confirmation was observed, and the
// transfer never starts without a validated position id.
type Flow struct {
	ID  string
	req Request

	writer ChainWriter
	policy RetryPolicy
	logger *slog.Logger

	onUpdate            func(Status)
	onTransferSubmitted func()
	onComplete          func(Result)

	mu         sync.Mutex
	state      State
	completed  map[Step]bool
	attempt    int
	positionID string
	finalTx    string
	cancelled  bool
	running    bool
	cancelRun  context.CancelFunc
}

// NewFlow creates a Flow in the Idle state.
func NewFlow(id string, req Request, writer ChainWriter, policy RetryPolicy, logger *slog.Logger) *Flow {
	return &Flow{
		ID:        id,
		req:       req,
		writer:    writer,
		policy:    policy,
		logger:    logger.With(slog.String("component", "borrow_flow"), slog.String("flow_id", id)),
		state:     Idle{},
		completed: make(map[Step]bool),
	}
}

// Start launches the flow in a new goroutine bound to ctx. It returns
// ErrRunning if the flow is already executing.
func (f *Flow) Start(ctx context.Context) error {
	return f.dispatch(ctx, StepApprove)
}

// Retry re-dispatches only the failed step (and, on success, the steps after
// it). The approve step gets a single fresh attempt; deposit and transfer
// re-enter the bounded automatic retry loop.
func (f *Flow) Retry(ctx context.Context) error {
	f.mu.Lock()
	failed, ok := f.state.(Failed)
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("borrow: flow %s is not in a failed state: %w", f.ID, domain.ErrFlowActive)
	}
	return f.dispatch(ctx, failed.Err.Step)
}

// Cancel stops the flow from progressing and clears the visible
// current-step/error state. It does not and cannot reverse confirmed
// on-chain steps: collateral locked by a completed approve-and-deposit stays
// locked.
func (f *Flow) Cancel() {
	f.mu.Lock()
	f.cancelled = true
	if f.cancelRun != nil {
		f.cancelRun()
	}
	f.state = Idle{}
	f.attempt = 0
	f.mu.Unlock()
	f.notifyUpdate()
}

// Snapshot returns the JSON-friendly view of the flow.
func (f *Flow) Snapshot() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusLocked()
}

func (f *Flow) statusLocked() Status {
	st := Status{
		ID:             f.ID,
		PositionID:     f.positionID,
		CompletedSteps: []int{},
	}
	for s := StepApprove; s <= StepTransfer; s++ {
		if f.completed[s] {
			st.CompletedSteps = append(st.CompletedSteps, int(s))
		}
	}

	switch v := f.state.(type) {
	case Idle:
		st.State = "idle"
	case Preparing:
		st.State = "preparing"
		st.Step = int(v.Step)
		st.Attempt = f.attempt
	case Confirming:
		st.State = "confirming"
		st.Step = int(v.Step)
		st.TxHash = v.TxHash
		st.Attempt = v.Attempt
	case StepDone:
		st.State = "step_complete"
		st.Step = int(v.Step)
		st.TxHash = v.TxHash
	case Complete:
		st.State = "complete"
		st.TxHash = v.TxHash
		st.CompletedAt = &v.CompletedAt
	case Failed:
		st.State = "failed"
		st.Step = int(v.Err.Step)
		st.Error = &ErrorInfo{
			Classification: v.Err.Classification,
			Step:           int(v.Err.Step),
			Retryable:      v.Err.Retryable(),
			Message:        v.Err.Underlying.Error(),
			Hint:           v.Err.Hint(),
		}
	}
	return st
}

// dispatch starts execution from the given step in a goroutine.
func (f *Flow) dispatch(ctx context.Context, from Step) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("borrow: flow %s already running: %w", f.ID, domain.ErrFlowActive)
	}
	runCtx, cancel := context.WithCancel(ctx)
	f.running = true
	f.cancelled = false
	f.cancelRun = cancel
	f.mu.Unlock()

	go func() {
		defer func() {
			f.mu.Lock()
			f.running = false
			f.mu.Unlock()
			cancel()
		}()
		f.run(runCtx, from)
	}()
	return nil
}

// run executes steps from `from` through the transfer. It assumes the
// preceding steps are already marked complete.
func (f *Flow) run(ctx context.Context, from Step) {
	if from <= StepApprove && !f.isComplete(StepApprove) {
		rcpt, ferr := f.runStep(ctx, StepApprove, 1, func(ctx context.Context) (string, error) {
			return f.writer.ApproveCollateral(ctx, f.req.Collateral)
		})
		if ferr != nil {
			f.fail(ferr)
			return
		}
		f.markComplete(StepApprove, rcpt.Hash, "")
	}

	if from <= StepDeposit && !f.isComplete(StepDeposit) {
		rcpt, ferr := f.runStep(ctx, StepDeposit, f.policy.Attempts, func(ctx context.Context) (string, error) {
			return f.writer.DepositAndMint(ctx, f.req.Collateral, f.req.TipAmount)
		})
		if ferr != nil {
			f.fail(ferr)
			return
		}
		// The lending contract does not yet expose a decodable position
		// event; the confirmed block number stands in for the id. See
		// positionFromReceipt before relying on it for anything but
		// plumbing.
		f.markComplete(StepDeposit, rcpt.Hash, positionFromReceipt(rcpt))
	}

	// The transfer requires a well-formed position id from the deposit.
	// A malformed id is a broken precondition, not a transient failure.
	posID := f.position()
	if _, err := strconv.ParseUint(posID, 10, 64); err != nil {
		f.fail(&Error{
			Underlying:     fmt.Errorf("invalid position id %q", posID),
			Classification: Unknown,
			Step:           StepTransfer,
			Fatal:          true,
		})
		return
	}

	if !f.isComplete(StepTransfer) {
		rcpt, ferr := f.runStep(ctx, StepTransfer, f.policy.Attempts, func(ctx context.Context) (string, error) {
			hash, err := f.writer.ExecuteTransfer(ctx, posID, f.req.Recipient, f.req.TipAmount, f.req.Message)
			if err == nil && f.onTransferSubmitted != nil {
				f.onTransferSubmitted()
			}
			return hash, err
		})
		if ferr != nil {
			f.fail(ferr)
			return
		}
		f.markComplete(StepTransfer, rcpt.Hash, "")
		f.complete(rcpt.Hash)
	}
}

// runStep submits and confirms one step, retrying up to attempts times with
// the policy's delays. Retries are strictly sequential; there are never two
// in-flight submissions of the same step.
func (f *Flow) runStep(ctx context.Context, step Step, attempts int, submit func(context.Context) (string, error)) (TxReceipt, *Error) {
	var lastErr *Error

	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return TxReceipt{}, &Error{Underlying: ctx.Err(), Classification: NetworkError, Step: step}
		}

		f.setState(Preparing{Step: step}, attempt)

		hash, err := submit(ctx)
		if err == nil {
			f.setState(Confirming{Step: step, TxHash: hash, Attempt: attempt}, attempt)
			rcpt, werr := f.writer.WaitConfirmed(ctx, hash)
			if werr == nil {
				return rcpt, nil
			}
			err = werr
		}

		lastErr = Classify(err, step)
		f.logger.Warn("flow step failed",
			slog.Int("step", int(step)),
			slog.Int("attempt", attempt),
			slog.String("classification", string(lastErr.Classification)),
			slog.String("error", err.Error()),
		)

		// User rejections are final for this dispatch; retrying them
		// automatically would spam the wallet.
		if !lastErr.Retryable() || attempt == attempts {
			return TxReceipt{}, lastErr
		}

		timer := time.NewTimer(f.policy.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return TxReceipt{}, &Error{Underlying: ctx.Err(), Classification: NetworkError, Step: step}
		case <-timer.C:
		}
	}
	return TxReceipt{}, lastErr
}

// positionFromReceipt derives the position id from a confirmed deposit.
// Block number is a deterministic placeholder until the vault emits a
// decodable position event.
func positionFromReceipt(rcpt TxReceipt) string {
	return strconv.FormatUint(rcpt.BlockNumber, 10)
}

func (f *Flow) setState(s State, attempt int) {
	f.mu.Lock()
	if f.cancelled {
		f.mu.Unlock()
		return
	}
	f.state = s
	f.attempt = attempt
	f.mu.Unlock()
	f.notifyUpdate()
}

func (f *Flow) markComplete(step Step, txHash, positionID string) {
	f.mu.Lock()
	f.completed[step] = true
	if positionID != "" {
		f.positionID = positionID
	}
	if !f.cancelled {
		f.state = StepDone{Step: step, TxHash: txHash, PositionID: f.positionID}
	}
	f.mu.Unlock()
	f.notifyUpdate()
}

func (f *Flow) complete(txHash string) {
	now := time.Now()
	f.mu.Lock()
	f.finalTx = txHash
	f.state = Complete{TxHash: txHash, CompletedAt: now}
	f.mu.Unlock()
	f.notifyUpdate()

	if f.onComplete != nil {
		f.onComplete(Result{
			FlowID:      f.ID,
			TxHash:      txHash,
			PositionID:  f.position(),
			TipAmount:   f.req.TipAmount,
			Collateral:  f.req.Collateral,
			Recipient:   f.req.Recipient,
			Message:     f.req.Message,
			CompletedAt: now,
		})
	}
}

func (f *Flow) fail(ferr *Error) {
	f.mu.Lock()
	if f.cancelled {
		f.mu.Unlock()
		return
	}
	f.state = Failed{Err: ferr}
	f.mu.Unlock()
	f.notifyUpdate()

	// User rejections are a quiet outcome, not a bug; keep them out of the
	// error log.
	if ferr.Classification != UserRejected {
		f.logger.Error("flow failed",
			slog.Int("step", int(ferr.Step)),
			slog.String("classification", string(ferr.Classification)),
			slog.String("error", ferr.Underlying.Error()),
		)
	}
}

func (f *Flow) isComplete(step Step) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed[step]
}

func (f *Flow) position() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.positionID
}

func (f *Flow) notifyUpdate() {
	if f.onUpdate != nil {
		f.onUpdate(f.Snapshot())
	}
}
