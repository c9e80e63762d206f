// Package mock provides a test double for the asr.Provider interface.
//
// Use Provider in unit tests to feed controlled transcriptions into the
// pipeline without a live ASR backend. All fields are safe to set before
// calling any method; mutating them during a concurrent call is the
// caller's responsibility.
package mock

import (
	"context"
	"sync"

	"github.com/clinivox/clinivox/pkg/provider/asr"
	"github.com/clinivox/clinivox/pkg/types"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the Request passed to Transcribe.
	Req asr.Request
}

// Provider is a mock implementation of asr.Provider.
// Zero values for response fields cause Transcribe to return an empty
// transcription and a nil error. Set Err to inject a failure.
type Provider struct {
	mu sync.Mutex

	// Transcription is returned by Transcribe. Nil yields an empty
	// transcription with Language "en".
	Transcription *types.Transcription

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Calls records every invocation of Transcribe in order.
	Calls []TranscribeCall
}

// Transcribe records the call and returns Transcription, Err.
func (p *Provider) Transcribe(ctx context.Context, req asr.Request) (*types.Transcription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, Req: req})
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Transcription == nil {
		return &types.Transcription{Language: "en"}, nil
	}
	return p.Transcription, nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements asr.Provider at compile time.
var _ asr.Provider = (*Provider)(nil)
