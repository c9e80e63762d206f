// Package worker loads and holds the heavy pipeline workers.
//
// The five workers (ASR transcriber, diarizer, translator, clinical
// extractor, object-store resolver) are initialized by a background
// [Loader] while the server is already answering health probes. The
// [Registry] is the shared state between the loader and the dispatcher:
// the loader writes under the mutex, the dispatcher reads, and a ready
// channel marks the end of loading.
package worker

import (
	"fmt"
	"sync"

	"github.com/clinivox/clinivox/internal/clinical"
	"github.com/clinivox/clinivox/internal/source"
	"github.com/clinivox/clinivox/internal/translate"
	"github.com/clinivox/clinivox/pkg/provider/asr"
	"github.com/clinivox/clinivox/pkg/provider/diarize"
)

// Worker names used as models_loaded keys in health responses and as
// prefixes in load-error messages.
const (
	KeyTranscriber = "transcriber"
	KeyDiarizer    = "diarizer"
	KeyTranslator  = "translator"
	KeyClinical    = "clinical"
	KeyS3          = "s3"
)

// Status is the loader state reported by health probes.
type Status struct {
	Ready        bool            `json:"ready"`
	ModelsLoaded map[string]bool `json:"models_loaded"`
	ModelErrors  []string        `json:"model_errors"`
}

// Registry is the process-wide holder of loaded workers. A nil worker
// means the stage is unavailable and the pipeline degrades around it.
// Safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	transcriber asr.Provider
	diarizer    diarize.Provider
	translator  *translate.Translator
	clinical    *clinical.Extractor
	resolver    *source.Resolver
	errs        []string

	ready     chan struct{}
	readyOnce sync.Once
}

// NewRegistry returns an empty Registry whose ready channel is open.
func NewRegistry() *Registry {
	return &Registry{ready: make(chan struct{})}
}

// ---- loader side ----

func (r *Registry) SetTranscriber(p asr.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcriber = p
}

func (r *Registry) SetDiarizer(p diarize.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diarizer = p
}

func (r *Registry) SetTranslator(t *translate.Translator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.translator = t
}

func (r *Registry) SetClinical(e *clinical.Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clinical = e
}

func (r *Registry) SetResolver(res *source.Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolver = res
}

// RecordError logs a worker load failure into the registry. The worker
// stays nil; the pipeline treats its stage as unavailable.
func (r *Registry) RecordError(worker string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, fmt.Sprintf("%s: %v", worker, err))
}

// MarkReady closes the ready channel. Idempotent.
func (r *Registry) MarkReady() {
	r.readyOnce.Do(func() { close(r.ready) })
}

// ---- dispatcher side ----

func (r *Registry) Transcriber() asr.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transcriber
}

func (r *Registry) Diarizer() diarize.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.diarizer
}

func (r *Registry) Translator() *translate.Translator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.translator
}

func (r *Registry) Clinical() *clinical.Extractor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clinical
}

func (r *Registry) Resolver() *source.Resolver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolver
}

// Ready returns a channel closed when the background loader finishes.
func (r *Registry) Ready() <-chan struct{} {
	return r.ready
}

// IsReady reports whether loading has finished, without blocking.
func (r *Registry) IsReady() bool {
	select {
	case <-r.ready:
		return true
	default:
		return false
	}
}

// Status snapshots the registry for a health response. The models_loaded
// map always carries all five worker keys.
func (r *Registry) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	errs := make([]string, len(r.errs))
	copy(errs, r.errs)

	return Status{
		Ready: r.IsReady(),
		ModelsLoaded: map[string]bool{
			KeyTranscriber: r.transcriber != nil,
			KeyDiarizer:    r.diarizer != nil,
			KeyTranslator:  r.translator != nil,
			KeyClinical:    r.clinical != nil,
			KeyS3:          r.resolver != nil,
		},
		ModelErrors: errs,
	}
}
