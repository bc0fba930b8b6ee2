// Package groq implements the llm.Provider interface against the Groq
// OpenAI-compatible chat completions API.
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/roundtableai/roundtable/config"
	"github.com/roundtableai/roundtable/llm"
	"github.com/roundtableai/roundtable/types"
)

// Provider implements llm.Provider for Groq. The API is OpenAI-compatible:
// bearer auth, /v1/chat/completions, choices[].message.content.
type Provider struct {
	cfg     config.LLMConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewProvider creates a Groq provider.
func NewProvider(cfg config.LLMConfig, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.groq.com/openai"
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Provider{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  logger.With(zap.String("provider", "groq")),
	}
}

func (p *Provider) Name() string { return "groq" }

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqRequest struct {
	Model       string        `json:"model"`
	Messages    []groqMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream"`
}

type groqResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		FinishReason string      `json:"finish_reason"`
		Message      groqMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Completion issues a synchronous chat request.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, types.NewError(types.ErrCompletionFailure, "rate limiter wait aborted").WithCause(err)
		}
	}

	model := req.Model
	if model == "" {
		model = p.cfg.DefaultModel
	}

	body := groqRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}
	if body.MaxTokens == 0 {
		body.MaxTokens = p.cfg.MaxTokens
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, groqMessage(m))
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrCompletionFailure, "failed to encode request").WithCause(err)
	}

	endpoint := fmt.Sprintf("%s/v1/chat/completions", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrCompletionFailure, "failed to build request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrCompletionFailure, "completion request failed").
			WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrCompletionFailure, "failed to read response").WithCause(err)
	}

	var parsed groqResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, types.NewError(types.ErrCompletionFailure,
			fmt.Sprintf("failed to decode response (status=%d)", resp.StatusCode)).WithCause(err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("completion failed: status=%d", resp.StatusCode)
		if parsed.Error != nil {
			msg = fmt.Sprintf("completion failed: status=%d type=%s msg=%s",
				resp.StatusCode, parsed.Error.Type, parsed.Error.Message)
		}
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, types.NewError(types.ErrCompletionFailure, msg).WithRetryable(retryable)
	}

	if len(parsed.Choices) == 0 {
		return nil, types.NewError(types.ErrCompletionFailure, "completion returned no choices")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	p.logger.Debug("completion ok",
		zap.String("model", parsed.Model),
		zap.Int("total_tokens", parsed.Usage.TotalTokens),
		zap.Duration("latency", time.Since(start)),
	)

	return &llm.ChatResponse{
		ID:       parsed.ID,
		Provider: p.Name(),
		Model:    parsed.Model,
		Content:  content,
		Usage: llm.ChatUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
		CreatedAt: time.Now().UTC(),
	}, nil
}

// HealthCheck probes the models endpoint.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	endpoint := fmt.Sprintf("%s/v1/models", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &llm.HealthStatus{Healthy: false}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &llm.HealthStatus{Healthy: false, Latency: latency},
			fmt.Errorf("groq health check failed: status=%d", resp.StatusCode)
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

var _ llm.Provider = (*Provider)(nil)
