// Package pipeline runs a consultation audio job through the processing
// stages: resolve, normalize, transcribe, align, reconstruct, translate,
// and extract.
//
// Stage policy follows two tiers. Resolve, normalize, transcribe, and
// reconstruct are fatal: their failure fails the job. Align, translate,
// and extract degrade: the job continues with a single default speaker,
// the untranslated transcript, or no clinical record respectively.
// Every stage that produces an artifact persists it before the next
// stage begins, so a failure mid-job leaves the earlier tiers on disk.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/clinivox/clinivox/internal/align"
	"github.com/clinivox/clinivox/internal/observe"
	"github.com/clinivox/clinivox/internal/transcript"
	"github.com/clinivox/clinivox/internal/worker"
	"github.com/clinivox/clinivox/pkg/audio"
	"github.com/clinivox/clinivox/pkg/provider/asr"
	"github.com/clinivox/clinivox/pkg/provider/diarize"
	"github.com/clinivox/clinivox/pkg/types"
)

// Stage names, used as JobResult status keys, metric attributes, and log
// fields.
const (
	StageResolve     = "resolve"
	StageNormalize   = "normalize"
	StageTranscribe  = "transcribe"
	StageAlign       = "align"
	StageReconstruct = "reconstruct"
	StageTranslate   = "translate"
	StageExtract     = "extract"
)

// Per-stage outcome values.
const (
	StatusDone     = "done"
	StatusSkipped  = "skipped"
	StatusDegraded = "degraded"
	StatusFailed   = "failed"
)

// Artifact keys in [Result.Artifacts].
const (
	ArtifactRaw        = "raw_transcript"
	ArtifactLean       = "lean_transcript"
	ArtifactTranslated = "translated_transcript"
	ArtifactClinical   = "clinical_record"
)

// Job describes one audio file to process. Exactly one of LocalPath and
// RemoteRef must be set.
type Job struct {
	// ID correlates all log lines and the response for this job.
	ID string

	// LocalPath is a filesystem path to the audio file.
	LocalPath string

	// RemoteRef is an object-store reference: an s3:// URI or a bare key
	// in the default bucket.
	RemoteRef string

	// Language is the ASR language hint (e.g. "en", "ms"). Empty defers
	// to the transcriber's configured default, which is auto-detection
	// unless the provider was built with an explicit language.
	Language string

	// SkipTranslation leaves the transcript in its original language.
	SkipTranslation bool

	// SkipClinical suppresses clinical record extraction.
	SkipClinical bool
}

// ref returns whichever audio reference the job carries.
func (j Job) ref() string {
	if j.RemoteRef != "" {
		return j.RemoteRef
	}
	return j.LocalPath
}

// Result reports the outcome of one job: the status of every stage that
// was considered, and the artifacts written.
type Result struct {
	JobID     string            `json:"job_id"`
	Stages    map[string]string `json:"stages"`
	Artifacts map[string]string `json:"artifacts"`
}

// Normalizer converts an audio file into the canonical transcription
// format and returns the local path of the result. Satisfied by
// [audio.Normalizer].
type Normalizer interface {
	Normalize(ctx context.Context, path string) (string, error)
}

var _ Normalizer = (*audio.Normalizer)(nil)

// Executor wires the loaded workers into the stage sequence.
type Executor struct {
	workers    *worker.Registry
	normalizer Normalizer
	recon      *transcript.Reconstructor
	store      *ArtifactStore
	metrics    *observe.Metrics
	now        func() time.Time
}

// Option customizes an Executor.
type Option func(*Executor)

// WithMetrics overrides the metrics instance, primarily for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithClock overrides the timestamp source used for artifact names.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// NewExecutor creates an Executor over the given workers and artifact
// store.
func NewExecutor(workers *worker.Registry, normalizer Normalizer, recon *transcript.Reconstructor, store *ArtifactStore, opts ...Option) *Executor {
	e := &Executor{
		workers:    workers,
		normalizer: normalizer,
		recon:      recon,
		store:      store,
		metrics:    observe.DefaultMetrics(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the stage sequence for one job. A nil error means the job
// finished (possibly degraded); a non-nil error means a fatal stage
// failed and the returned Result records which one. Artifacts written
// before the failure stay on disk.
func (e *Executor) Run(ctx context.Context, job Job) (*Result, error) {
	log := slog.With("job_id", job.ID)
	start := e.now()
	ts := start.Unix()
	stem := strings.TrimSuffix(filepath.Base(job.ref()), filepath.Ext(job.ref()))

	res := &Result{
		JobID:     job.ID,
		Stages:    make(map[string]string),
		Artifacts: make(map[string]string),
	}

	e.metrics.ActiveJobs.Add(ctx, 1)
	defer e.metrics.ActiveJobs.Add(ctx, -1)

	runErr := e.run(ctx, log, job, stem, ts, res)

	jobStatus := "ok"
	if runErr != nil {
		jobStatus = "failed"
	}
	e.metrics.RecordJob(ctx, jobStatus, time.Since(start).Seconds())
	log.Info("job finished", "status", jobStatus, "stages", res.Stages)
	return res, runErr
}

func (e *Executor) run(ctx context.Context, log *slog.Logger, job Job, stem string, ts int64, res *Result) error {
	// Resolve.
	local, err := runStage(e, ctx, log, res, StageResolve, func() (string, error) {
		return e.resolve(ctx, job)
	})
	if err != nil {
		return e.fatal(res, StageResolve, err)
	}

	// Normalize.
	wav, err := runStage(e, ctx, log, res, StageNormalize, func() (string, error) {
		return e.normalizer.Normalize(ctx, local)
	})
	if err != nil {
		return e.fatal(res, StageNormalize, err)
	}

	// Transcribe.
	tr, err := runStage(e, ctx, log, res, StageTranscribe, func() (*types.Transcription, error) {
		transcriber := e.workers.Transcriber()
		if transcriber == nil {
			return nil, fmt.Errorf("transcriber not loaded")
		}
		return transcriber.Transcribe(ctx, asr.Request{WAVPath: wav, Language: job.Language})
	})
	if err != nil {
		return e.fatal(res, StageTranscribe, err)
	}

	// Align. Degrades to the default single speaker when no diarizer is
	// available or the backend fails.
	e.align(ctx, log, res, wav, tr)

	path, err := e.store.WriteRaw(stem, ts, tr)
	if err != nil {
		return e.fatal(res, StageTranscribe, err)
	}
	res.Artifacts[ArtifactRaw] = path

	// Reconstruct.
	lean, err := runStage(e, ctx, log, res, StageReconstruct, func() (*types.LeanTranscript, error) {
		return e.recon.Reconstruct(tr), nil
	})
	if err != nil {
		return e.fatal(res, StageReconstruct, err)
	}
	path, err = e.store.WriteLean(stem, ts, lean)
	if err != nil {
		return e.fatal(res, StageReconstruct, err)
	}
	res.Artifacts[ArtifactLean] = path
	e.metrics.RecordTurns(ctx, primaryLanguage(lean), len(lean.Turns))

	// Translate.
	lean, err = e.translate(ctx, log, job, stem, res, lean)
	if err != nil {
		return e.fatal(res, StageTranslate, err)
	}

	// Extract.
	e.extract(ctx, log, job, stem, res, lean)

	return nil
}

// ---- stages ----

func (e *Executor) resolve(ctx context.Context, job Job) (string, error) {
	if job.RemoteRef != "" {
		resolver := e.workers.Resolver()
		if resolver == nil {
			return "", fmt.Errorf("object-store resolver not loaded")
		}
		return resolver.Resolve(ctx, job.RemoteRef)
	}
	if job.LocalPath == "" {
		return "", fmt.Errorf("job carries no audio reference")
	}
	if _, err := os.Stat(job.LocalPath); err != nil {
		return "", fmt.Errorf("audio file %q: %w", job.LocalPath, err)
	}
	return job.LocalPath, nil
}

func (e *Executor) align(ctx context.Context, log *slog.Logger, res *Result, wav string, tr *types.Transcription) {
	start := e.now()
	diarizer := e.workers.Diarizer()
	if diarizer == nil {
		res.Stages[StageAlign] = StatusDegraded
		log.Info("diarization unavailable, using single speaker", "stage", StageAlign)
		e.metrics.RecordStage(ctx, StageAlign, StatusDegraded, time.Since(start).Seconds())
		return
	}

	spans, err := diarizer.Diarize(ctx, diarize.Request{WAVPath: wav})
	if err != nil {
		res.Stages[StageAlign] = StatusDegraded
		log.Warn("diarization failed, using single speaker", "stage", StageAlign, "error", err)
		e.metrics.RecordStage(ctx, StageAlign, StatusDegraded, time.Since(start).Seconds())
		return
	}

	align.AssignSpeakers(tr, spans)
	res.Stages[StageAlign] = StatusDone
	log.Info("stage finished", "stage", StageAlign, "speaker_spans", len(spans))
	e.metrics.RecordStage(ctx, StageAlign, StatusDone, time.Since(start).Seconds())
}

func (e *Executor) translate(ctx context.Context, log *slog.Logger, job Job, stem string, res *Result, lean *types.LeanTranscript) (*types.LeanTranscript, error) {
	start := e.now()
	if job.SkipTranslation {
		res.Stages[StageTranslate] = StatusSkipped
		log.Info("stage skipped by request", "stage", StageTranslate)
		return lean, nil
	}
	translator := e.workers.Translator()
	if translator == nil {
		res.Stages[StageTranslate] = StatusDegraded
		log.Info("translation unavailable, keeping original language", "stage", StageTranslate)
		e.metrics.RecordStage(ctx, StageTranslate, StatusDegraded, time.Since(start).Seconds())
		return lean, nil
	}

	translated, err := translator.Translate(ctx, lean)
	if err != nil {
		// Only context errors propagate out of the translator; anything
		// recoverable keeps the original turns instead.
		return lean, err
	}

	path, werr := e.store.WriteTranslated(stem, translated)
	if werr != nil {
		res.Stages[StageTranslate] = StatusDegraded
		log.Warn("translated artifact not written", "stage", StageTranslate, "error", werr)
		e.metrics.RecordStage(ctx, StageTranslate, StatusDegraded, time.Since(start).Seconds())
		return translated, nil
	}
	res.Artifacts[ArtifactTranslated] = path
	res.Stages[StageTranslate] = StatusDone
	log.Info("stage finished", "stage", StageTranslate, "turns", len(translated.Turns))
	e.metrics.RecordStage(ctx, StageTranslate, StatusDone, time.Since(start).Seconds())
	return translated, nil
}

func (e *Executor) extract(ctx context.Context, log *slog.Logger, job Job, stem string, res *Result, lean *types.LeanTranscript) {
	start := e.now()
	if job.SkipClinical {
		res.Stages[StageExtract] = StatusSkipped
		log.Info("stage skipped by request", "stage", StageExtract)
		return
	}
	extractor := e.workers.Clinical()
	if extractor == nil {
		res.Stages[StageExtract] = StatusDegraded
		log.Info("clinical extraction unavailable", "stage", StageExtract)
		e.metrics.RecordStage(ctx, StageExtract, StatusDegraded, time.Since(start).Seconds())
		return
	}

	rec, err := extractor.Extract(ctx, lean, filepath.Base(job.ref()))
	if err != nil {
		res.Stages[StageExtract] = StatusDegraded
		log.Warn("clinical extraction failed", "stage", StageExtract, "error", err)
		e.metrics.RecordStage(ctx, StageExtract, StatusDegraded, time.Since(start).Seconds())
		return
	}

	path, werr := e.store.WriteClinical(stem, rec)
	if werr != nil {
		res.Stages[StageExtract] = StatusDegraded
		log.Warn("clinical artifact not written", "stage", StageExtract, "error", werr)
		e.metrics.RecordStage(ctx, StageExtract, StatusDegraded, time.Since(start).Seconds())
		return
	}
	res.Artifacts[ArtifactClinical] = path
	res.Stages[StageExtract] = StatusDone
	log.Info("stage finished", "stage", StageExtract, "method", rec.Metadata.ExtractionMethod)
	e.metrics.RecordStage(ctx, StageExtract, StatusDone, time.Since(start).Seconds())
}

// ---- helpers ----

// runStage runs a fatal-tier stage, records its duration and status, and
// logs completion. The stage status is set to done or failed.
func runStage[T any](e *Executor, ctx context.Context, log *slog.Logger, res *Result, stage string, fn func() (T, error)) (T, error) {
	start := e.now()
	v, err := fn()
	status := StatusDone
	if err != nil {
		status = StatusFailed
	}
	res.Stages[stage] = status
	e.metrics.RecordStage(ctx, stage, status, time.Since(start).Seconds())
	if err == nil {
		log.Info("stage finished", "stage", stage)
	}
	return v, err
}

// fatal marks the stage failed and wraps the error with the stage name.
func (e *Executor) fatal(res *Result, stage string, err error) error {
	res.Stages[stage] = StatusFailed
	return fmt.Errorf("%s: %w", stage, err)
}

// primaryLanguage returns the first detected language, or "unknown".
func primaryLanguage(lean *types.LeanTranscript) string {
	if len(lean.Languages) > 0 {
		return lean.Languages[0]
	}
	return "unknown"
}
