package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/clinivox/clinivox/pkg/provider/asr"
	"github.com/clinivox/clinivox/pkg/provider/diarize"
	"github.com/clinivox/clinivox/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. The translator and clinical extractor share the llm
// registrations. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	asr      map[string]func(ProviderEntry) (asr.Provider, error)
	diarizer map[string]func(ProviderEntry) (diarize.Provider, error)
	llm      map[string]func(ProviderEntry) (llm.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		asr:      make(map[string]func(ProviderEntry) (asr.Provider, error)),
		diarizer: make(map[string]func(ProviderEntry) (diarize.Provider, error)),
		llm:      make(map[string]func(ProviderEntry) (llm.Provider, error)),
	}
}

// RegisterASR registers an ASR provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterASR(name string, factory func(ProviderEntry) (asr.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asr[name] = factory
}

// RegisterDiarizer registers a diarization provider factory under name.
func (r *Registry) RegisterDiarizer(name string, factory func(ProviderEntry) (diarize.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diarizer[name] = factory
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// CreateASR instantiates an ASR provider using the factory registered
// under entry.Name. Returns [ErrProviderNotRegistered] if no factory has
// been registered for that name.
func (r *Registry) CreateASR(entry ProviderEntry) (asr.Provider, error) {
	r.mu.RLock()
	factory, ok := r.asr[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: asr/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateDiarizer instantiates a diarization provider using the factory
// registered under entry.Name.
func (r *Registry) CreateDiarizer(entry ProviderEntry) (diarize.Provider, error) {
	r.mu.RLock()
	factory, ok := r.diarizer[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: diarizer/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateLLM instantiates an LLM provider using the factory registered
// under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
