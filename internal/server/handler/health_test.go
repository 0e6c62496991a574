package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	err error
}

func (p *fakePinger) Ping(context.Context) error {
	return p.err
}

func TestHealthCheck_AllDependenciesUp(t *testing.T) {
	h := NewHealthHandler([]DependencyCheck{
		{Name: "redis", Pinger: &fakePinger{}},
		{Name: "postgres", Pinger: &fakePinger{}},
	}, testLogger())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Dependencies["redis"])
	assert.Equal(t, "ok", resp.Dependencies["postgres"])
}

func TestHealthCheck_DegradesOnFailedPing(t *testing.T) {
	h := NewHealthHandler([]DependencyCheck{
		{Name: "redis", Pinger: &fakePinger{}},
		{Name: "postgres", Pinger: &fakePinger{err: errors.New("connection refused")}},
	}, testLogger())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "ok", resp.Dependencies["redis"])
	assert.Contains(t, resp.Dependencies["postgres"], "connection refused")
}

func TestHealthCheck_NoChecksStaysAlive(t *testing.T) {
	h := NewHealthHandler(nil, testLogger())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
