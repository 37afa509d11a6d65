package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/flowgraph/llm"
)

func newTestProvider(url string) *Provider {
	return New(Config{
		ProviderName: "test",
		APIKey:       "sk-test",
		BaseURL:      url,
		DefaultModel: "gpt-4o-mini",
	}, nil)
}

func TestNew_Defaults(t *testing.T) {
	p := New(Config{APIKey: "sk-test"}, nil)

	assert.Equal(t, "https://api.openai.com", p.cfg.BaseURL)
	assert.Equal(t, "/v1/chat/completions", p.cfg.EndpointPath)
	assert.Equal(t, "openai-compatible", p.cfg.ProviderName)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", p.endpoint())
}

func TestProvider_Completion(t *testing.T) {
	var captured wireRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "hello there"}}],
			"usage": {"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10}
		}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "Be brief."},
			{Role: llm.RoleUser, Content: "hi"},
		},
	})
	require.NoError(t, err)

	// Default model filled in, messages passed through.
	assert.Equal(t, "gpt-4o-mini", captured.Model)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)

	assert.Equal(t, "hello there", resp.FirstText())
	assert.Equal(t, "test", resp.Provider)
	assert.Equal(t, 10, resp.Usage.TotalTokens)
}

func TestProvider_CompletionWithToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req wireRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Tools, 1)
		assert.Equal(t, "function", req.Tools[0].Type)
		assert.Equal(t, "execute_command", req.Tools[0].Function.Name)

		_, _ = w.Write([]byte(`{
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "tool_calls",
				"message": {"role": "assistant", "tool_calls": [
					{"id": "call_1", "type": "function",
					 "function": {"name": "execute_command", "arguments": "{\"command\":\"ls\"}"}}
				]}}]
		}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "list files"}},
		Tools: []llm.ToolSchema{{
			Name:       "execute_command",
			Parameters: json.RawMessage(`{"type":"object"}`),
		}},
	})
	require.NoError(t, err)

	require.Len(t, resp.Choices, 1)
	calls := resp.Choices[0].Message.ToolCalls
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "execute_command", calls[0].Name)
	assert.JSONEq(t, `{"command":"ls"}`, string(calls[0].Arguments))
}

func TestProvider_CompletionErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCode  llm.ErrorCode
		retryable bool
	}{
		{
			name:      "rate limited",
			status:    http.StatusTooManyRequests,
			body:      `{"error":{"message":"rate limit exceeded","type":"rate_limit_error"}}`,
			wantCode:  llm.ErrRateLimited,
			retryable: true,
		},
		{
			name:     "unauthorized",
			status:   http.StatusUnauthorized,
			body:     `{"error":{"message":"invalid api key"}}`,
			wantCode: llm.ErrUnauthorized,
		},
		{
			name:     "bad request",
			status:   http.StatusBadRequest,
			body:     `{"error":{"message":"model not found"}}`,
			wantCode: llm.ErrInvalidRequest,
		},
		{
			name:     "quota keyword",
			status:   http.StatusBadRequest,
			body:     `{"error":{"message":"you exceeded your quota"}}`,
			wantCode: llm.ErrQuotaExceeded,
		},
		{
			name:      "service unavailable",
			status:    http.StatusServiceUnavailable,
			body:      `upstream down`,
			wantCode:  llm.ErrProviderUnavailable,
			retryable: true,
		},
		{
			name:      "server error",
			status:    http.StatusInternalServerError,
			body:      `boom`,
			wantCode:  llm.ErrUpstreamError,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := newTestProvider(srv.URL)
			_, err := p.Completion(context.Background(), &llm.ChatRequest{
				Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
			})

			var perr *llm.Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.wantCode, perr.Code)
			assert.Equal(t, tt.status, perr.HTTPStatus)
			assert.Equal(t, tt.retryable, perr.Retryable)
			assert.Equal(t, "test", perr.Provider)

			if tt.wantCode == llm.ErrRateLimited {
				assert.True(t, llm.IsRateLimited(err))
			} else {
				assert.False(t, llm.IsRateLimited(err))
			}
		})
	}
}

func TestProvider_CompletionConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	p := newTestProvider(srv.URL)
	_, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})

	var perr *llm.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, llm.ErrUpstreamError, perr.Code)
	assert.True(t, perr.Retryable)
}

func TestProvider_ContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	p := newTestProvider(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Completion(ctx, &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
}
