package resilience

import (
	"context"

	"github.com/clinivox/clinivox/internal/observe"
	"github.com/clinivox/clinivox/pkg/provider/llm"
)

// llmKind labels LLM backends in the provider request counters.
const llmKind = "llm"

// LLMFallback implements [llm.Provider] with automatic failover across
// multiple LLM backends. Each backend has its own circuit breaker; when
// the primary fails or its breaker is open, the next healthy fallback is
// tried. The translation and clinical extraction stages use it to stop
// hammering a rate-limited remote endpoint once it starts failing.
type LLMFallback struct {
	group   *FallbackGroup[llm.Provider]
	metrics *observe.Metrics
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred
// backend. Every backend is wrapped so its completions feed the provider
// request counters.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	f := &LLMFallback{metrics: metrics}
	f.group = NewFallbackGroup[llm.Provider](f.instrument(primaryName, primary), primaryName, cfg)
	return f
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, f.instrument(name, provider))
}

func (f *LLMFallback) instrument(name string, provider llm.Provider) llm.Provider {
	return &instrumentedLLM{name: name, provider: provider, metrics: f.metrics}
}

// instrumentedLLM counts every completion against the named backend.
type instrumentedLLM struct {
	name     string
	provider llm.Provider
	metrics  *observe.Metrics
}

var _ llm.Provider = (*instrumentedLLM)(nil)

func (p *instrumentedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.provider.Complete(ctx, req)
	if err != nil {
		p.metrics.RecordProviderRequest(ctx, p.name, llmKind, "error")
		p.metrics.RecordProviderError(ctx, p.name, llmKind)
		return nil, err
	}
	p.metrics.RecordProviderRequest(ctx, p.name, llmKind, "ok")
	return resp, nil
}

// Complete sends the request to the first healthy provider and returns
// its response. If the primary fails, subsequent fallbacks are tried.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}
