package borrow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tippinbit/tippind/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 3,
		Delays:   []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond},
	}
}

// fakeWriter scripts per-attempt failures for each step and records the
// order of submissions.
type fakeWriter struct {
	mu            sync.Mutex
	approveErrs   []error
	depositErrs   []error
	transferErrs  []error
	approveCalls  int
	depositCalls  int
	transferCalls int
	blockNumber   uint64
	order         []string
}

func scripted(errs []error, call int) error {
	if call <= len(errs) {
		return errs[call-1]
	}
	return nil
}

func (w *fakeWriter) ApproveCollateral(ctx context.Context, amount *big.Int) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.approveCalls++
	w.order = append(w.order, "approve")
	if err := scripted(w.approveErrs, w.approveCalls); err != nil {
		return "", err
	}
	return fmt.Sprintf("0xapprove%d", w.approveCalls), nil
}

func (w *fakeWriter) DepositAndMint(ctx context.Context, coll, tip *big.Int) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.depositCalls++
	w.order = append(w.order, "deposit")
	if err := scripted(w.depositErrs, w.depositCalls); err != nil {
		return "", err
	}
	return fmt.Sprintf("0xdeposit%d", w.depositCalls), nil
}

func (w *fakeWriter) ExecuteTransfer(ctx context.Context, positionID, recipient string, amount *big.Int, message string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.transferCalls++
	w.order = append(w.order, "transfer:"+positionID)
	if err := scripted(w.transferErrs, w.transferCalls); err != nil {
		return "", err
	}
	return fmt.Sprintf("0xtransfer%d", w.transferCalls), nil
}

func (w *fakeWriter) WaitConfirmed(ctx context.Context, txHash string) (TxReceipt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	bn := w.blockNumber
	if bn == 0 {
		bn = 12345
	}
	return TxReceipt{Hash: txHash, BlockNumber: bn}, nil
}

func (w *fakeWriter) counts() (int, int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.approveCalls, w.depositCalls, w.transferCalls
}

func testRequest() Request {
	return Request{
		TipAmount:  big.NewInt(10),
		Collateral: big.NewInt(2),
		Recipient:  "0x1111111111111111111111111111111111111111",
		Message:    "thanks!",
	}
}

func waitFor(t *testing.T, f *Flow, state string) Status {
	t.Helper()
	var st Status
	require.Eventually(t, func() bool {
		st = f.Snapshot()
		return st.State == state
	}, 2*time.Second, time.Millisecond, "flow never reached %q (last: %q)", state, st.State)
	return st
}

func TestFlow_HappyPath(t *testing.T) {
	w := &fakeWriter{blockNumber: 777}
	f := NewFlow("f1", testRequest(), w, fastPolicy(), testLogger())

	var mu sync.Mutex
	var result *Result
	f.onComplete = func(r Result) {
		mu.Lock()
		result = &r
		mu.Unlock()
	}

	require.NoError(t, f.Start(context.Background()))
	st := waitFor(t, f, "complete")

	assert.Equal(t, []int{1, 2, 3}, st.CompletedSteps)
	assert.Equal(t, "0xtransfer1", st.TxHash)
	assert.NotNil(t, st.CompletedAt)

	a, d, x := w.counts()
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, d)
	assert.Equal(t, 1, x)

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, result)
	assert.Equal(t, "777", result.PositionID)
}

func TestFlow_StrictStepOrdering(t *testing.T) {
	w := &fakeWriter{}
	f := NewFlow("f2", testRequest(), w, fastPolicy(), testLogger())

	require.NoError(t, f.Start(context.Background()))
	waitFor(t, f, "complete")

	w.mu.Lock()
	defer w.mu.Unlock()
	require.Len(t, w.order, 3)
	assert.Equal(t, "approve", w.order[0])
	assert.Equal(t, "deposit", w.order[1])
	// The transfer carries the position id derived from the deposit.
	assert.Equal(t, "transfer:12345", w.order[2])
}

func TestFlow_ApproveFailureNeverAutoRetries(t *testing.T) {
	w := &fakeWriter{approveErrs: []error{errors.New("rpc connection refused")}}
	f := NewFlow("f3", testRequest(), w, fastPolicy(), testLogger())

	require.NoError(t, f.Start(context.Background()))
	st := waitFor(t, f, "failed")

	a, d, _ := w.counts()
	assert.Equal(t, 1, a, "step 1 gets exactly one attempt")
	assert.Equal(t, 0, d, "step 2 must not start after a step 1 failure")
	require.NotNil(t, st.Error)
	assert.Equal(t, 1, st.Error.Step)
	assert.True(t, st.Error.Retryable)
}

func TestFlow_DepositRetriesExactlyThreeTimes(t *testing.T) {
	boom := errors.New("rpc flake")
	w := &fakeWriter{depositErrs: []error{boom, boom, boom, boom}}
	f := NewFlow("f4", testRequest(), w, fastPolicy(), testLogger())

	require.NoError(t, f.Start(context.Background()))
	st := waitFor(t, f, "failed")

	_, d, x := w.counts()
	assert.Equal(t, 3, d, "exactly three automatic attempts before surfacing")
	assert.Equal(t, 0, x)
	require.NotNil(t, st.Error)
	assert.Equal(t, NetworkError, st.Error.Classification)
	assert.Equal(t, []int{1}, st.CompletedSteps)
}

func TestFlow_DepositRecoversOnSecondAttempt(t *testing.T) {
	w := &fakeWriter{depositErrs: []error{errors.New("timeout")}}
	f := NewFlow("f5", testRequest(), w, fastPolicy(), testLogger())

	require.NoError(t, f.Start(context.Background()))
	waitFor(t, f, "complete")

	_, d, x := w.counts()
	assert.Equal(t, 2, d)
	assert.Equal(t, 1, x)
}

func TestFlow_UserRejectionStopsAutoRetry(t *testing.T) {
	w := &fakeWriter{depositErrs: []error{errors.New("user rejected the request")}}
	f := NewFlow("f6", testRequest(), w, fastPolicy(), testLogger())

	require.NoError(t, f.Start(context.Background()))
	st := waitFor(t, f, "failed")

	_, d, _ := w.counts()
	assert.Equal(t, 1, d, "a rejection is final, not a transient error")
	require.NotNil(t, st.Error)
	assert.Equal(t, UserRejected, st.Error.Classification)
	assert.False(t, st.Error.Retryable)
}

func TestFlow_ManualRetryResumesFailedStep(t *testing.T) {
	boom := errors.New("rpc flake")
	w := &fakeWriter{depositErrs: []error{boom, boom, boom}}
	f := NewFlow("f7", testRequest(), w, fastPolicy(), testLogger())

	require.NoError(t, f.Start(context.Background()))
	waitFor(t, f, "failed")

	require.NoError(t, f.Retry(context.Background()))
	waitFor(t, f, "complete")

	a, d, x := w.counts()
	assert.Equal(t, 1, a, "retry must not re-run the completed approve step")
	assert.Equal(t, 4, d)
	assert.Equal(t, 1, x)
}

func TestFlow_RetryWhileRunningReportsActive(t *testing.T) {
	block := make(chan struct{})
	w := &fakeWriter{}
	f := NewFlow("f10", testRequest(), w, fastPolicy(), testLogger())

	hold := &holdingWriter{fakeWriter: w, holdOn: "deposit", release: block}
	f.writer = hold

	require.NoError(t, f.Start(context.Background()))
	require.Eventually(t, func() bool {
		return len(f.Snapshot().CompletedSteps) == 1
	}, 2*time.Second, time.Millisecond)

	// A retry of a flow that is still executing must surface as the
	// flow-active sentinel so the API can answer 409, not 500.
	err := f.Retry(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFlowActive)

	// Same for a second concurrent start.
	err = f.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFlowActive)

	close(block)
	waitFor(t, f, "complete")
}

func TestFlow_CancelKeepsCompletedSteps(t *testing.T) {
	block := make(chan struct{})
	w := &fakeWriter{}
	f := NewFlow("f8", testRequest(), w, fastPolicy(), testLogger())

	// Hold the flow inside step 2 so step 1 is complete when we cancel.
	w.depositErrs = nil
	hold := &holdingWriter{fakeWriter: w, holdOn: "deposit", release: block}
	f.writer = hold

	require.NoError(t, f.Start(context.Background()))
	require.Eventually(t, func() bool {
		st := f.Snapshot()
		return len(st.CompletedSteps) == 1
	}, 2*time.Second, time.Millisecond)

	f.Cancel()
	close(block)

	st := f.Snapshot()
	assert.Equal(t, "idle", st.State)
	assert.Equal(t, []int{1}, st.CompletedSteps, "cancel must not erase completed steps")

	// No reversing transaction was submitted.
	a, _, x := w.counts()
	assert.Equal(t, 1, a)
	assert.Equal(t, 0, x)
}

func TestFlow_ErrorStateCarriesHint(t *testing.T) {
	w := &fakeWriter{transferErrs: []error{
		errors.New("execution reverted: position unhealthy"),
		errors.New("execution reverted: position unhealthy"),
		errors.New("execution reverted: position unhealthy"),
	}}
	f := NewFlow("f9", testRequest(), w, fastPolicy(), testLogger())

	require.NoError(t, f.Start(context.Background()))
	st := waitFor(t, f, "failed")

	require.NotNil(t, st.Error)
	assert.Equal(t, ContractError, st.Error.Classification)
	assert.Equal(t, 3, st.Error.Step)
	assert.Contains(t, st.Error.Hint, "position unhealthy")
}

// holdingWriter blocks a chosen step until released, so tests can observe
// intermediate flow states.
type holdingWriter struct {
	*fakeWriter
	holdOn  string
	release <-chan struct{}
	once    sync.Once
}

func (h *holdingWriter) DepositAndMint(ctx context.Context, coll, tip *big.Int) (string, error) {
	if h.holdOn == "deposit" {
		h.once.Do(func() {
			select {
			case <-h.release:
			case <-ctx.Done():
			}
		})
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return h.fakeWriter.DepositAndMint(ctx, coll, tip)
}
