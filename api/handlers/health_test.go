package handlers

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

func TestHandleHealth(t *testing.T) {
	h := NewHealthHandler(nil)

	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
}

func TestHandleReady_AllChecksPass(t *testing.T) {
	h := NewHealthHandler(nil)
	h.RegisterCheck(CheckFunc{CheckName: "provider", Fn: func(context.Context) error { return nil }})

	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "pass", status.Checks["provider"].Status)
}

func TestHandleReady_CheckFails(t *testing.T) {
	h := NewHealthHandler(nil)
	h.RegisterCheck(CheckFunc{CheckName: "provider", Fn: func(context.Context) error { return nil }})
	h.RegisterCheck(CheckFunc{CheckName: "upstream", Fn: func(context.Context) error {
		return errors.New("connection refused")
	}})

	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "pass", status.Checks["provider"].Status)
	assert.Equal(t, "fail", status.Checks["upstream"].Status)
	assert.Contains(t, status.Checks["upstream"].Message, "connection refused")
}

func TestHandleVersion(t *testing.T) {
	h := NewHealthHandler(nil)

	w := httptest.NewRecorder()
	h.HandleVersion("1.2.3", "2026-08-25", "abc123")(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.True(t, resp.Success)

	info, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.2.3", info["version"])
	assert.Equal(t, "abc123", info["git_commit"])
}
