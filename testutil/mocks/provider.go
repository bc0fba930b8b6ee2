// Package mocks provides test doubles for external collaborators.
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/roundtableai/roundtable/llm"
)

// ProviderCall records one Completion invocation for assertions.
type ProviderCall struct {
	Model    string
	Messages []llm.ChatMessage
}

// Provider is a scripted mock implementation of llm.Provider. Responses are
// consumed in order; after the script runs out, the last entry repeats.
// Safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	responses []string
	err       error
	// completionFunc, when set, overrides the scripted behavior entirely.
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	calls []ProviderCall
}

// NewProvider creates a mock provider scripted with the given responses.
func NewProvider(responses ...string) *Provider {
	return &Provider{responses: responses}
}

// SetError makes every subsequent Completion call fail with err. Passing nil
// clears the failure.
func (p *Provider) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// SetCompletionFunc replaces the scripted behavior with fn.
func (p *Provider) SetCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completionFunc = fn
}

// Queue appends responses to the script.
func (p *Provider) Queue(responses ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, responses...)
}

// Calls returns a copy of all recorded Completion invocations.
func (p *Provider) Calls() []ProviderCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ProviderCall(nil), p.calls...)
}

// CallCount returns the number of Completion invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// Completion implements llm.Provider.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, ProviderCall{
		Model:    req.Model,
		Messages: append([]llm.ChatMessage(nil), req.Messages...),
	})
	fn := p.completionFunc
	err := p.err
	var content string
	if len(p.responses) > 0 {
		content = p.responses[0]
		if len(p.responses) > 1 {
			p.responses = p.responses[1:]
		}
	}
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return &llm.ChatResponse{
		Provider:  "mock",
		Model:     req.Model,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// HealthCheck implements llm.Provider.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return "mock" }

var _ llm.Provider = (*Provider)(nil)
