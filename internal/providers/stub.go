package providers

import (
	"context"
	"fmt"
	"sync"
)

// StubProvider replays a fixed script of responses, one per Chat call.
// It exists for tests: the agent loop can be driven end to end with deterministic tool-call sequences and no
// network. When the script runs out, every further call returns the last
// response.
type StubProvider struct {
	mu        sync.Mutex
	script    []ChatResponse
	callIndex int

	// Requests records every ChatRequest received, for assertions.
	Requests []ChatRequest
}

// NewStubProvider builds a provider that replays script in order.
func NewStubProvider(script ...ChatResponse) *StubProvider {
	return &StubProvider{script: script}
}

func (p *StubProvider) Name() string         { return "stub" }
func (p *StubProvider) DefaultModel() string { return "stub-model" }

func (p *StubProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if len(p.script) == 0 {
		return nil, fmt.Errorf("stub: no scripted responses")
	}
	i := p.callIndex
	if i >= len(p.script) {
		i = len(p.script) - 1
	}
	p.callIndex++
	resp := p.script[i]
	return &resp, nil
}

func (p *StubProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	resp, err := p.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	if onChunk != nil {
		if resp.Content != "" {
			onChunk(StreamChunk{Content: resp.Content})
		}
		onChunk(StreamChunk{Done: true})
	}
	return resp, nil
}

// Calls reports how many Chat/ChatStream calls the stub has served.
func (p *StubProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callIndex
}
