package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/clinivox/clinivox/internal/clinical"
	"github.com/clinivox/clinivox/internal/config"
	"github.com/clinivox/clinivox/internal/resilience"
	"github.com/clinivox/clinivox/internal/source"
	"github.com/clinivox/clinivox/internal/translate"
	"github.com/clinivox/clinivox/pkg/provider/asr"
	"github.com/clinivox/clinivox/pkg/provider/diarize"
	"golang.org/x/sync/errgroup"
)

// warmUpSeconds is the length of the silent clip run through the local
// models after loading.
const warmUpSeconds = 0.5

// Loader initializes the five workers in the background and signals the
// registry when done. Load failures are recorded, never fatal; the
// server keeps answering and degrades the affected stages.
type Loader struct {
	cfg       *config.Config
	factories *config.Registry
	workers   *Registry
}

// NewLoader creates a Loader that populates workers from the provider
// factories registered in factories.
func NewLoader(cfg *config.Config, factories *config.Registry, workers *Registry) *Loader {
	return &Loader{cfg: cfg, factories: factories, workers: workers}
}

// Run loads all workers concurrently, runs the warm-up pass, and marks
// the registry ready. It always returns; per-worker failures end up in
// the registry's error log.
func (l *Loader) Run(ctx context.Context) {
	defer l.workers.MarkReady()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(l.loadTranscriber)
	g.Go(l.loadDiarizer)
	g.Go(l.loadTranslator)
	g.Go(l.loadClinical)
	g.Go(l.loadResolver)

	// The closures record their own failures and return nil.
	_ = g.Wait()

	l.warmUp(ctx)
	slog.Info("worker loading finished", "status", l.workers.Status().ModelsLoaded)
}

func (l *Loader) loadTranscriber() error {
	p, err := l.factories.CreateASR(l.cfg.Providers.ASR)
	if err != nil {
		slog.Error("transcriber failed to load", "error", err)
		l.workers.RecordError(KeyTranscriber, err)
		return nil
	}
	l.workers.SetTranscriber(p)
	slog.Info("worker loaded", "worker", KeyTranscriber, "provider", l.cfg.Providers.ASR.Name)
	return nil
}

func (l *Loader) loadDiarizer() error {
	entry := l.cfg.Providers.Diarizer
	if entry.APIKey == "" {
		slog.Info("diarization disabled: no token configured")
		return nil
	}
	p, err := l.factories.CreateDiarizer(entry)
	if err != nil {
		if errors.Is(err, diarize.ErrTokenMissing) {
			slog.Info("diarization disabled: no token configured")
			return nil
		}
		slog.Error("diarizer failed to load", "error", err)
		l.workers.RecordError(KeyDiarizer, err)
		return nil
	}
	l.workers.SetDiarizer(p)
	slog.Info("worker loaded", "worker", KeyDiarizer, "provider", entry.Name)
	return nil
}

func (l *Loader) loadTranslator() error {
	entry := l.cfg.Providers.Translator
	if entry.APIKey == "" {
		slog.Info("translation disabled: no API key configured")
		return nil
	}
	p, err := l.factories.CreateLLM(entry)
	if err != nil {
		slog.Error("translator failed to load", "error", err)
		l.workers.RecordError(KeyTranslator, err)
		return nil
	}
	// The breaker stops per-turn fallback from burning the rate-limited
	// quota once the endpoint is down.
	guarded := resilience.NewLLMFallback(p, entry.Name, resilience.FallbackConfig{})
	l.workers.SetTranslator(translate.New(guarded))
	slog.Info("worker loaded", "worker", KeyTranslator, "provider", entry.Name)
	return nil
}

func (l *Loader) loadClinical() error {
	entry := l.cfg.Providers.Clinical
	ext, err := NewClinicalExtractor(entry, l.factories)
	if err != nil {
		// The rule strategy needs no model, so extraction stays available.
		slog.Error("clinical model failed to load, extraction falls back to rules", "error", err)
		l.workers.RecordError(KeyClinical, err)
		l.workers.SetClinical(clinical.New(nil))
		return nil
	}
	l.workers.SetClinical(ext)
	if entry.Name == "" || entry.Name == "rules" {
		slog.Info("worker loaded", "worker", KeyClinical, "provider", "rules")
	} else {
		slog.Info("worker loaded", "worker", KeyClinical, "provider", entry.Name, "model", entry.Model)
	}
	return nil
}

// NewClinicalExtractor builds the clinical extractor described by entry.
// An empty or "rules" provider name selects the model-free rule strategy;
// any other name resolves an LLM factory and guards it with the
// circuit-broken fallback group. Shared between the background loader and
// the standalone extract command.
func NewClinicalExtractor(entry config.ProviderEntry, factories *config.Registry) (*clinical.Extractor, error) {
	if entry.Name == "" || entry.Name == "rules" {
		return clinical.New(nil), nil
	}
	p, err := factories.CreateLLM(entry)
	if err != nil {
		return nil, err
	}
	guarded := resilience.NewLLMFallback(p, entry.Name, resilience.FallbackConfig{})
	return clinical.New(guarded, clinical.WithModelName(entry.Model)), nil
}

func (l *Loader) loadResolver() error {
	res, err := source.NewResolver(l.cfg.S3.Bucket, l.cfg.S3.Region, l.cfg.Paths.CacheDir)
	if err != nil {
		slog.Error("object-store resolver failed to load", "error", err)
		l.workers.RecordError(KeyS3, err)
		return nil
	}
	l.workers.SetResolver(res)
	slog.Info("worker loaded", "worker", KeyS3, "bucket", l.cfg.S3.Bucket)
	return nil
}

// warmUp exercises the local models with a short silent clip so the
// first real job does not pay first-inference cost. Failures are logged
// and ignored. The remote translator and clinical backends are not
// warmed; a dummy request would burn rate-limited quota.
func (l *Loader) warmUp(ctx context.Context) {
	transcriber := l.workers.Transcriber()
	diarizer := l.workers.Diarizer()
	if transcriber == nil && diarizer == nil {
		return
	}

	wavPath := filepath.Join(os.TempDir(), "clinivox-warmup.wav")
	if err := writeSilenceWAV(wavPath, warmUpSeconds); err != nil {
		slog.Warn("warm-up skipped: cannot write clip", "error", err)
		return
	}
	defer os.Remove(wavPath)

	if transcriber != nil {
		if _, err := transcriber.Transcribe(ctx, asr.Request{WAVPath: wavPath, Language: asr.LanguageAuto}); err != nil {
			slog.Warn("transcriber warm-up failed", "error", err)
		} else {
			slog.Debug("transcriber warmed up")
		}
	}
	if diarizer != nil {
		if _, err := diarizer.Diarize(ctx, diarize.Request{WAVPath: wavPath}); err != nil {
			slog.Warn("diarizer warm-up failed", "error", err)
		} else {
			slog.Debug("diarizer warmed up")
		}
	}
}

// writeSilenceWAV writes a mono 16 kHz signed 16-bit WAV of silence.
func writeSilenceWAV(path string, seconds float64) error {
	const sampleRate = 16000
	dataLen := int(seconds*sampleRate) * 2

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(make([]byte, dataLen))

	return os.WriteFile(path, buf.Bytes(), 0o644)
}
