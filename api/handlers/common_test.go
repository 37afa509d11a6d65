package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/flowgraph/llm"
	"github.com/BaSui01/flowgraph/workflow"
)

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"answer": "42"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError_ValidationError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, &workflow.ValidationError{Reason: "no executors"}, zap.NewNop())

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "WORKFLOW_VALIDATION", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "no executors")
}

func TestWriteError_RateLimitedAgentFailure(t *testing.T) {
	err := &workflow.AgentInvocationError{
		Agent: "analyzer",
		Err:   &llm.Error{Code: llm.ErrRateLimited, Message: "too many requests", Retryable: true},
	}

	w := httptest.NewRecorder()
	WriteError(w, err, zap.NewNop())

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(llm.ErrRateLimited), resp.Error.Code)
	assert.True(t, resp.Error.Retryable)
}

func TestWriteError_AgentFailure(t *testing.T) {
	err := &workflow.AgentInvocationError{Agent: "analyzer", Err: errors.New("connection refused")}

	w := httptest.NewRecorder()
	WriteError(w, err, zap.NewNop())

	assert.Equal(t, http.StatusBadGateway, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "AGENT_INVOCATION", resp.Error.Code)
	assert.True(t, resp.Error.Retryable)
	assert.Empty(t, w.Header().Get("Retry-After"))
}

func TestWriteError_ProviderError(t *testing.T) {
	err := &llm.Error{Code: llm.ErrUpstreamTimeout, Message: "gateway timeout", HTTPStatus: http.StatusGatewayTimeout}

	w := httptest.NewRecorder()
	WriteError(w, err, zap.NewNop())

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(llm.ErrUpstreamTimeout), resp.Error.Code)
}

func TestWriteError_Unknown(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, errors.New("boom"), zap.NewNop())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INTERNAL", resp.Error.Code)
}

func TestDecodeJSONBody_UnknownField(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nope": true}`))
	w := httptest.NewRecorder()

	var dst struct {
		Input string `json:"input"`
	}
	err := DecodeJSONBody(w, r, &dst, zap.NewNop())

	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateContentType(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()

	assert.False(t, ValidateContentType(w, r, zap.NewNop()))
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	r2 := httptest.NewRequest(http.MethodPost, "/", nil)
	r2.Header.Set("Content-Type", "application/json")
	w2 := httptest.NewRecorder()
	assert.True(t, ValidateContentType(w2, r2, zap.NewNop()))
}

func TestResponseWriter_CapturesStatus(t *testing.T) {
	w := httptest.NewRecorder()
	rw := NewResponseWriter(w)

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK) // second call is ignored
	_, _ = rw.Write([]byte("x"))

	assert.Equal(t, http.StatusTeapot, rw.StatusCode)
	assert.Equal(t, http.StatusTeapot, w.Code)
}
