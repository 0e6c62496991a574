package handler

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tippinbit/tippind/internal/domain"
)

type fakeBalances struct {
	enabled    bool
	snap       domain.BalanceSnapshot
	refetchErr error
	refetched  bool
}

func (f *fakeBalances) Enabled() bool                    { return f.enabled }
func (f *fakeBalances) Snapshot() domain.BalanceSnapshot { return f.snap }
func (f *fakeBalances) Refetch(context.Context) error {
	f.refetched = true
	return f.refetchErr
}

func TestGetBalance(t *testing.T) {
	onChain, _ := new(big.Int).SetString("25000000000000000000", 10) // 25 MUSD
	h := NewBalanceHandler(&fakeBalances{
		enabled: true,
		snap: domain.BalanceSnapshot{
			OnChain:   onChain,
			Available: true,
			PolledAt:  time.Now().UTC(),
		},
	}, testLogger())

	rec := httptest.NewRecorder()
	h.GetBalance(rec, httptest.NewRequest(http.MethodGet, "/api/balance", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp balanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Balance)
	assert.Equal(t, "25000000000000000000", *resp.Balance)
	assert.Equal(t, "25.00", *resp.BalanceUSD)
	assert.True(t, resp.Available)
}

func TestGetBalance_OptimisticOverrideWins(t *testing.T) {
	onChain, _ := new(big.Int).SetString("25000000000000000000", 10)
	optimistic, _ := new(big.Int).SetString("15000000000000000000", 10)
	h := NewBalanceHandler(&fakeBalances{
		enabled: true,
		snap: domain.BalanceSnapshot{
			OnChain:    onChain,
			Optimistic: optimistic,
			Available:  true,
		},
	}, testLogger())

	rec := httptest.NewRecorder()
	h.GetBalance(rec, httptest.NewRequest(http.MethodGet, "/api/balance", nil))

	var resp balanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Balance)
	assert.Equal(t, "15000000000000000000", *resp.Balance)
}

func TestGetBalance_NeverPolledIsNullNotZero(t *testing.T) {
	h := NewBalanceHandler(&fakeBalances{enabled: true}, testLogger())

	rec := httptest.NewRecorder()
	h.GetBalance(rec, httptest.NewRequest(http.MethodGet, "/api/balance", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"balance":null`)
}

func TestGetBalance_Disabled(t *testing.T) {
	h := NewBalanceHandler(&fakeBalances{enabled: false}, testLogger())

	rec := httptest.NewRecorder()
	h.GetBalance(rec, httptest.NewRequest(http.MethodGet, "/api/balance", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp balanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Balance)
	assert.False(t, resp.Available)
}

func TestRefreshBalance(t *testing.T) {
	fb := &fakeBalances{enabled: true, snap: domain.BalanceSnapshot{Available: true}}
	h := NewBalanceHandler(fb, testLogger())

	rec := httptest.NewRecorder()
	h.RefreshBalance(rec, httptest.NewRequest(http.MethodPost, "/api/balance/refresh", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, fb.refetched)
}
