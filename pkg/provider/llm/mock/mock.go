// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the translation and clinical
// extraction stages send correct CompletionRequests and to feed
// controlled responses without a live LLM backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Responses: []string{`{"summary": "..."}`},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/clinivox/clinivox/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
//
// Each Complete call consumes the next entry of Responses; when the list
// is exhausted the last entry repeats. Set Errs analogously to inject
// per-call errors; a nil entry means success.
type Provider struct {
	mu sync.Mutex

	// Responses are the completion contents returned in order.
	Responses []string

	// Errs are per-call errors aligned with Responses. A call whose index
	// has no entry (or a nil entry) succeeds.
	Errs []error

	// Calls records every invocation of Complete in order.
	Calls []CompleteCall
}

// Complete records the call and returns the next configured response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := len(p.Calls)
	p.Calls = append(p.Calls, CompleteCall{Ctx: ctx, Req: req})

	if idx < len(p.Errs) && p.Errs[idx] != nil {
		return nil, p.Errs[idx]
	}

	var content string
	if len(p.Responses) > 0 {
		if idx >= len(p.Responses) {
			idx = len(p.Responses) - 1
		}
		content = p.Responses[idx]
	}
	return &llm.CompletionResponse{Content: content}, nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
