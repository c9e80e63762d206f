// Package clinical converts a consultation transcript into a structured
// clinical record.
//
// Two extraction strategies share one output schema. The generative
// strategy prompts an LLM with the speaker-attributed transcript and a
// JSON schema, retrying the parse when the model wraps or mangles its
// output. The rule strategy runs deterministic pattern extractors over
// the flattened text and needs no model at all. The generative path
// degrades into the rule path, never the reverse, so an extraction
// always produces a record.
package clinical

import (
	"context"
	"log/slog"

	"github.com/clinivox/clinivox/internal/observe"
	"github.com/clinivox/clinivox/pkg/provider/llm"
	"github.com/clinivox/clinivox/pkg/types"
)

// EnvModelName selects the extraction model preset.
const EnvModelName = "CLINICAL_MODEL_NAME"

// Extraction method labels stamped into record metadata.
const (
	MethodLLM   = "llm"
	MethodRules = "rules"
)

// Extractor produces ClinicalRecords from lean transcripts. With a nil
// provider it runs rule-only.
type Extractor struct {
	provider llm.Provider
	model    string
	metrics  *observe.Metrics
}

// Option is a functional option for configuring an Extractor.
type Option func(*Extractor)

// WithModelName records which model preset the extractor runs, for the
// record metadata.
func WithModelName(name string) Option {
	return func(e *Extractor) { e.model = name }
}

// WithMetrics overrides the metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Extractor) { e.metrics = m }
}

// New creates an Extractor. Pass a nil provider to force the rule
// strategy.
func New(provider llm.Provider, opts ...Option) *Extractor {
	e := &Extractor{provider: provider, metrics: observe.DefaultMetrics()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract builds a ClinicalRecord from the transcript. sourceFile is
// recorded in the metadata for traceability. Extract does not fail on
// model errors; it falls back to the rule strategy and reports which
// method produced the record.
func (e *Extractor) Extract(ctx context.Context, lean *types.LeanTranscript, sourceFile string) (*types.ClinicalRecord, error) {
	if e.provider != nil {
		rec, err := e.extractLLM(ctx, lean)
		if err == nil {
			e.stamp(rec, sourceFile, MethodLLM)
			e.metrics.RecordExtraction(ctx, MethodLLM)
			return rec, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("generative extraction failed, using rule strategy", "error", err)
	}

	rec := extractRules(lean)
	e.stamp(rec, sourceFile, MethodRules)
	e.metrics.RecordExtraction(ctx, MethodRules)
	return rec, nil
}

func (e *Extractor) stamp(rec *types.ClinicalRecord, sourceFile, method string) {
	rec.Metadata = types.RecordMetadata{
		SourceFile:       sourceFile,
		ExtractionMethod: method,
		PipelineVersion:  types.PipelineVersion,
	}
	if method == MethodLLM {
		rec.Metadata.ModelUsed = e.model
	}
}
