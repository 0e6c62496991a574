package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tippinbit/tippind/internal/borrow"
	"github.com/tippinbit/tippind/internal/collateral"
	"github.com/tippinbit/tippind/internal/domain"
)

type fakeFlows struct {
	enabled   bool
	startErr  error
	retryErr  error
	status    borrow.Status
	recipient string
	amount    *big.Int
	message   string
}

func (f *fakeFlows) Enabled() bool { return f.enabled }

func (f *fakeFlows) Start(tipAmount *big.Int, recipient, message string) (borrow.Status, error) {
	if f.startErr != nil {
		return borrow.Status{}, f.startErr
	}
	f.amount = tipAmount
	f.recipient = recipient
	f.message = message
	return f.status, nil
}

func (f *fakeFlows) Get(string) (borrow.Status, error) { return f.status, nil }

func (f *fakeFlows) Retry(string) (borrow.Status, error) {
	if f.retryErr != nil {
		return borrow.Status{}, f.retryErr
	}
	return f.status, nil
}

func (f *fakeFlows) Cancel(string) (borrow.Status, error) { return f.status, nil }

type fakeCollateralReader struct {
	balance *big.Int
	err     error
}

func (f *fakeCollateralReader) CollateralBalance(context.Context) (*big.Int, error) {
	return f.balance, f.err
}

func newBorrowHandler(flows *fakeFlows, reader *fakeCollateralReader, prices PriceService) *BorrowHandler {
	var cr CollateralReader
	if reader != nil {
		cr = reader
	}
	return NewBorrowHandler(flows, &fakeUsernames{
		claimed: domain.ClaimedUsername{
			Username:      "alice",
			WalletAddress: "0x8ba1f109551bD432803012645Ac136ddd64DBA72",
		},
	}, cr, prices, collateral.DefaultConfig(), testLogger())
}

func startBody(t *testing.T, recipient string) *strings.Reader {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"amount":    "10",
		"recipient": recipient,
		"message":   "great post!",
	})
	require.NoError(t, err)
	return strings.NewReader(string(body))
}

func TestStartBorrow_Accepted(t *testing.T) {
	flows := &fakeFlows{enabled: true, status: borrow.Status{ID: "f1", State: "preparing", Step: 1}}
	h := newBorrowHandler(flows, nil, &fakePriceSource{})

	rec := httptest.NewRecorder()
	h.StartBorrow(rec, httptest.NewRequest(http.MethodPost, "/api/borrow",
		startBody(t, "0x8ba1f109551bD432803012645Ac136ddd64DBA72")))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "10000000000000000000", flows.amount.String())
	assert.Equal(t, "0x8ba1f109551bD432803012645Ac136ddd64DBA72", flows.recipient)
}

func TestStartBorrow_ResolvesUsernameRecipient(t *testing.T) {
	flows := &fakeFlows{enabled: true}
	h := newBorrowHandler(flows, nil, &fakePriceSource{})

	rec := httptest.NewRecorder()
	h.StartBorrow(rec, httptest.NewRequest(http.MethodPost, "/api/borrow", startBody(t, "@alice")))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "0x8ba1f109551bD432803012645Ac136ddd64DBA72", flows.recipient)
}

func TestStartBorrow_DisabledIs503(t *testing.T) {
	flows := &fakeFlows{startErr: domain.ErrBorrowingDisabled}
	h := newBorrowHandler(flows, nil, &fakePriceSource{})

	rec := httptest.NewRecorder()
	h.StartBorrow(rec, httptest.NewRequest(http.MethodPost, "/api/borrow",
		startBody(t, "0x8ba1f109551bD432803012645Ac136ddd64DBA72")))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStartBorrow_BadAmount(t *testing.T) {
	h := newBorrowHandler(&fakeFlows{enabled: true}, nil, &fakePriceSource{})

	body, err := json.Marshal(map[string]string{"amount": "-5", "recipient": "@alice"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.StartBorrow(rec, httptest.NewRequest(http.MethodPost, "/api/borrow", strings.NewReader(string(body))))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRetryBorrow_RunningFlowIs409(t *testing.T) {
	flows := &fakeFlows{
		enabled:  true,
		retryErr: fmt.Errorf("borrow: flow f1 is not in a failed state: %w", domain.ErrFlowActive),
	}
	h := newBorrowHandler(flows, nil, &fakePriceSource{})

	req := httptest.NewRequest(http.MethodPost, "/api/borrow/f1/retry", nil)
	req.SetPathValue("id", "f1")
	rec := httptest.NewRecorder()
	h.RetryBorrow(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBorrowCapacity(t *testing.T) {
	// 0.001 BTC at $50,000 supports a tip of 50 / 2.1525 ≈ $23.23.
	balance, _ := new(big.Int).SetString("1000000000000000", 10)
	scaled, _ := new(big.Int).SetString("50000000000000000000000", 10)

	h := newBorrowHandler(&fakeFlows{enabled: true}, &fakeCollateralReader{balance: balance},
		&fakePriceSource{sample: domain.PriceSample{PriceUSD: 50000, PriceScaled: scaled}})

	rec := httptest.NewRecorder()
	h.BorrowCapacity(rec, httptest.NewRequest(http.MethodGet, "/api/borrow/capacity", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp capacityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "23.23", resp.MaxTipUSD)
	assert.Equal(t, "0.001000", resp.CollateralBTC)
	assert.True(t, resp.Enabled)
}

func TestBorrowCapacity_NoChainAccess(t *testing.T) {
	h := newBorrowHandler(&fakeFlows{}, nil, &fakePriceSource{})

	rec := httptest.NewRecorder()
	h.BorrowCapacity(rec, httptest.NewRequest(http.MethodGet, "/api/borrow/capacity", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
