// Package mock provides a test double for the diarize.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/clinivox/clinivox/pkg/provider/diarize"
	"github.com/clinivox/clinivox/pkg/types"
)

// DiarizeCall records a single invocation of Diarize.
type DiarizeCall struct {
	// Ctx is the context passed to Diarize.
	Ctx context.Context
	// Req is the Request passed to Diarize.
	Req diarize.Request
}

// Provider is a mock implementation of diarize.Provider.
// Zero values cause Diarize to return no spans and a nil error. Set Err
// to inject a failure.
type Provider struct {
	mu sync.Mutex

	// Spans is returned by Diarize.
	Spans []types.SpeakerSpan

	// Err, if non-nil, is returned as the error from Diarize.
	Err error

	// Calls records every invocation of Diarize in order.
	Calls []DiarizeCall
}

// Diarize records the call and returns Spans, Err.
func (p *Provider) Diarize(ctx context.Context, req diarize.Request) ([]types.SpeakerSpan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, DiarizeCall{Ctx: ctx, Req: req})
	if p.Err != nil {
		return nil, p.Err
	}
	spans := make([]types.SpeakerSpan, len(p.Spans))
	copy(spans, p.Spans)
	return spans, nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements diarize.Provider at compile time.
var _ diarize.Provider = (*Provider)(nil)
