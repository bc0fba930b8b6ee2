package groq

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roundtableai/roundtable/config"
	"github.com/roundtableai/roundtable/llm"
	"github.com/roundtableai/roundtable/types"
)

func newTestProvider(baseURL string) *Provider {
	return NewProvider(config.LLMConfig{
		APIKey:       "test-key",
		BaseURL:      baseURL,
		DefaultModel: "llama-3.3-70b-versatile",
		MaxTokens:    512,
		Timeout:      5 * time.Second,
	}, nil)
}

func chatRequest() *llm.ChatRequest {
	return &llm.ChatRequest{
		Messages: []llm.ChatMessage{
			{Role: "system", Content: "You are a panelist."},
			{Role: "user", Content: "CEO: what do you think?"},
		},
	}
}

func TestCompletion(t *testing.T) {
	var captured groqRequest
	var capturedAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		capturedAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(map[string]any{
			"id":    "cmpl-1",
			"model": "llama-3.3-70b-versatile",
			"choices": []map[string]any{
				{"index": 0, "finish_reason": "stop", "message": map[string]string{
					"role": "assistant", "content": "  A considered answer.  ",
				}},
			},
			"usage": map[string]int{"prompt_tokens": 40, "completion_tokens": 12, "total_tokens": 52},
		})
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	resp, err := p.Completion(context.Background(), chatRequest())
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", capturedAuth)
	assert.Equal(t, "llama-3.3-70b-versatile", captured.Model)
	assert.Equal(t, 512, captured.MaxTokens)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)

	assert.Equal(t, "cmpl-1", resp.ID)
	assert.Equal(t, "groq", resp.Provider)
	assert.Equal(t, "A considered answer.", resp.Content)
	assert.Equal(t, 52, resp.Usage.TotalTokens)
}

func TestCompletionRequestOverrides(t *testing.T) {
	var captured groqRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "ok"}},
			},
		})
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	req := chatRequest()
	req.Model = "other-model"
	req.MaxTokens = 64
	_, err := p.Completion(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "other-model", captured.Model)
	assert.Equal(t, 64, captured.MaxTokens)
}

func TestCompletionErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
		contains  string
	}{
		{
			name:      "rate limited is retryable",
			status:    http.StatusTooManyRequests,
			body:      `{"error":{"message":"slow down","type":"rate_limit_exceeded"}}`,
			retryable: true,
			contains:  "rate_limit_exceeded",
		},
		{
			name:      "server error is retryable",
			status:    http.StatusBadGateway,
			body:      `{}`,
			retryable: true,
			contains:  "status=502",
		},
		{
			name:      "client error is not retryable",
			status:    http.StatusUnauthorized,
			body:      `{"error":{"message":"bad key","type":"invalid_request_error"}}`,
			retryable: false,
			contains:  "bad key",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			p := newTestProvider(server.URL)
			_, err := p.Completion(context.Background(), chatRequest())
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrCompletionFailure))
			assert.Equal(t, tc.retryable, types.IsRetryable(err))
			assert.Contains(t, err.Error(), tc.contains)
		})
	}
}

func TestCompletionNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	_, err := p.Completion(context.Background(), chatRequest())
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCompletionFailure))
	assert.Contains(t, err.Error(), "no choices")
}

func TestCompletionConnectionFailure(t *testing.T) {
	p := newTestProvider("http://127.0.0.1:1")
	_, err := p.Completion(context.Background(), chatRequest())
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCompletionFailure))
	assert.True(t, types.IsRetryable(err))
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/v1/models", r.URL.Path)
			w.Write([]byte(`{"data":[]}`))
		}))
		defer server.Close()

		status, err := newTestProvider(server.URL).HealthCheck(context.Background())
		require.NoError(t, err)
		assert.True(t, status.Healthy)
	})

	t.Run("unhealthy on non-200", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		status, err := newTestProvider(server.URL).HealthCheck(context.Background())
		require.Error(t, err)
		assert.False(t, status.Healthy)
	})
}
