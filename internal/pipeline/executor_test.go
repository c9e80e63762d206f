package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/clinivox/clinivox/internal/clinical"
	"github.com/clinivox/clinivox/internal/transcript"
	"github.com/clinivox/clinivox/internal/translate"
	"github.com/clinivox/clinivox/internal/worker"
	asrmock "github.com/clinivox/clinivox/pkg/provider/asr/mock"
	diarizemock "github.com/clinivox/clinivox/pkg/provider/diarize/mock"
	llmmock "github.com/clinivox/clinivox/pkg/provider/llm/mock"
	"github.com/clinivox/clinivox/pkg/types"
)

// passNormalizer returns the input path unchanged; the mock transcriber
// never reads the file anyway.
type passNormalizer struct{}

func (passNormalizer) Normalize(_ context.Context, path string) (string, error) {
	return path, nil
}

type failNormalizer struct{}

func (failNormalizer) Normalize(context.Context, string) (string, error) {
	return "", errors.New("ffmpeg exploded")
}

// consultTranscription is a short two-speaker exchange that survives all
// reconstruction filters.
func consultTranscription() *types.Transcription {
	return &types.Transcription{
		Language: "en",
		Segments: []types.Segment{
			{Start: 0, End: 4, Text: "Good morning, what brings you in today?", AvgLogProb: -0.2},
			{Start: 5, End: 9, Text: "I have had chest pain for two days.", AvgLogProb: -0.3},
		},
	}
}

func consultSpans() []types.SpeakerSpan {
	return []types.SpeakerSpan{
		{Start: 0, End: 4.5, Speaker: "SPEAKER_00"},
		{Start: 4.5, End: 9, Speaker: "SPEAKER_01"},
	}
}

// fullWorkers returns a registry with every worker present.
func fullWorkers(llmProv *llmmock.Provider) *worker.Registry {
	w := worker.NewRegistry()
	w.SetTranscriber(&asrmock.Provider{Transcription: consultTranscription()})
	w.SetDiarizer(&diarizemock.Provider{Spans: consultSpans()})
	w.SetTranslator(translate.New(llmProv, translate.WithRequestInterval(0)))
	w.SetClinical(clinical.New(nil))
	w.MarkReady()
	return w
}

const fixedUnix = 1700000000

func newTestExecutor(t *testing.T, workers *worker.Registry) (*Executor, string) {
	t.Helper()
	outDir := t.TempDir()
	store := NewArtifactStore(outDir)
	recon := transcript.NewReconstructor(transcript.DefaultThresholds())
	exec := NewExecutor(workers, passNormalizer{}, recon, store,
		WithClock(func() time.Time { return time.Unix(fixedUnix, 0) }),
	)
	return exec, outDir
}

// audioFixture creates a dummy audio file and returns its path.
func audioFixture(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("not really audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunHappyPath(t *testing.T) {
	llmProv := &llmmock.Provider{}
	exec, outDir := newTestExecutor(t, fullWorkers(llmProv))

	res, err := exec.Run(context.Background(), Job{
		ID:        "job-1",
		LocalPath: audioFixture(t, "visit.m4a"),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, stage := range []string{StageResolve, StageNormalize, StageTranscribe, StageAlign, StageReconstruct, StageTranslate, StageExtract} {
		if res.Stages[stage] != StatusDone {
			t.Errorf("stage %s = %q, want done", stage, res.Stages[stage])
		}
	}

	wantArtifacts := map[string]string{
		ArtifactRaw:        filepath.Join(outDir, "00_transcripts", "visit_whisperx_1700000000.json"),
		ArtifactLean:       filepath.Join(outDir, "01_transcripts_lean", "visit_lean_1700000000.json"),
		ArtifactTranslated: filepath.Join(outDir, "02_translated", "visit_translated.json"),
		ArtifactClinical:   filepath.Join(outDir, "03_clinical_extraction", "visit_clinical.json"),
	}
	for key, want := range wantArtifacts {
		got := res.Artifacts[key]
		if got != want {
			t.Errorf("artifact %s = %q, want %q", key, got, want)
		}
		if _, statErr := os.Stat(got); statErr != nil {
			t.Errorf("artifact %s not on disk: %v", key, statErr)
		}
	}

	// English input means the translator never called the model.
	if len(llmProv.Calls) != 0 {
		t.Errorf("translator made %d LLM calls on English input", len(llmProv.Calls))
	}
}

func TestRunMissingAudioFails(t *testing.T) {
	exec, _ := newTestExecutor(t, fullWorkers(&llmmock.Provider{}))

	res, err := exec.Run(context.Background(), Job{
		ID:        "job-2",
		LocalPath: "/nonexistent/visit.m4a",
	})
	if err == nil {
		t.Fatal("expected a fatal resolve failure")
	}
	if res.Stages[StageResolve] != StatusFailed {
		t.Errorf("resolve status = %q, want failed", res.Stages[StageResolve])
	}
	if len(res.Artifacts) != 0 {
		t.Errorf("no artifacts should exist, got %v", res.Artifacts)
	}
}

func TestRunNormalizeFailureFatal(t *testing.T) {
	workers := fullWorkers(&llmmock.Provider{})
	outDir := t.TempDir()
	exec := NewExecutor(workers, failNormalizer{}, transcript.NewReconstructor(transcript.DefaultThresholds()), NewArtifactStore(outDir))

	res, err := exec.Run(context.Background(), Job{ID: "job-3", LocalPath: audioFixture(t, "visit.wav")})
	if err == nil {
		t.Fatal("expected a fatal normalize failure")
	}
	if res.Stages[StageResolve] != StatusDone {
		t.Errorf("resolve status = %q, want done", res.Stages[StageResolve])
	}
	if res.Stages[StageNormalize] != StatusFailed {
		t.Errorf("normalize status = %q, want failed", res.Stages[StageNormalize])
	}
}

func TestRunTranscribeFailureFatal(t *testing.T) {
	workers := fullWorkers(&llmmock.Provider{})
	workers.SetTranscriber(&asrmock.Provider{Err: errors.New("inference crashed")})
	exec, _ := newTestExecutor(t, workers)

	res, err := exec.Run(context.Background(), Job{ID: "job-4", LocalPath: audioFixture(t, "visit.m4a")})
	if err == nil {
		t.Fatal("expected a fatal transcribe failure")
	}
	if res.Stages[StageTranscribe] != StatusFailed {
		t.Errorf("transcribe status = %q, want failed", res.Stages[StageTranscribe])
	}
	if _, ok := res.Artifacts[ArtifactRaw]; ok {
		t.Error("raw artifact written despite transcribe failure")
	}
}

func TestRunNoDiarizerDegrades(t *testing.T) {
	workers := fullWorkers(&llmmock.Provider{})
	workers.SetDiarizer(nil)
	exec, _ := newTestExecutor(t, workers)

	res, err := exec.Run(context.Background(), Job{
		ID:        "job-5",
		LocalPath: audioFixture(t, "visit.m4a"),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stages[StageAlign] != StatusDegraded {
		t.Errorf("align status = %q, want degraded", res.Stages[StageAlign])
	}

	// The lean transcript falls back to the single default speaker.
	lean := readLean(t, res.Artifacts[ArtifactLean])
	for _, turn := range lean.Turns {
		if turn.Speaker != types.DefaultSpeaker {
			t.Errorf("turn speaker = %q, want %q", turn.Speaker, types.DefaultSpeaker)
		}
	}
}

func TestRunDiarizerErrorDegrades(t *testing.T) {
	workers := fullWorkers(&llmmock.Provider{})
	workers.SetDiarizer(&diarizemock.Provider{Err: errors.New("pyannote timeout")})
	exec, _ := newTestExecutor(t, workers)

	res, err := exec.Run(context.Background(), Job{ID: "job-6", LocalPath: audioFixture(t, "visit.m4a")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stages[StageAlign] != StatusDegraded {
		t.Errorf("align status = %q, want degraded", res.Stages[StageAlign])
	}
}

func TestRunSkipFlags(t *testing.T) {
	exec, outDir := newTestExecutor(t, fullWorkers(&llmmock.Provider{}))

	res, err := exec.Run(context.Background(), Job{
		ID:              "job-7",
		LocalPath:       audioFixture(t, "talk.wav"),
		SkipTranslation: true,
		SkipClinical:    true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stages[StageTranslate] != StatusSkipped {
		t.Errorf("translate status = %q, want skipped", res.Stages[StageTranslate])
	}
	if res.Stages[StageExtract] != StatusSkipped {
		t.Errorf("extract status = %q, want skipped", res.Stages[StageExtract])
	}

	for _, tier := range []string{"02_translated", "03_clinical_extraction"} {
		if _, statErr := os.Stat(filepath.Join(outDir, tier)); !os.IsNotExist(statErr) {
			t.Errorf("tier %s should not exist for a skipped stage", tier)
		}
	}
	if _, ok := res.Artifacts[ArtifactRaw]; !ok {
		t.Error("raw artifact missing")
	}
	if _, ok := res.Artifacts[ArtifactLean]; !ok {
		t.Error("lean artifact missing")
	}
}

func TestRunTranslatorUnavailableDegrades(t *testing.T) {
	workers := fullWorkers(&llmmock.Provider{})
	workers.SetTranslator(nil)
	exec, _ := newTestExecutor(t, workers)

	res, err := exec.Run(context.Background(), Job{ID: "job-8", LocalPath: audioFixture(t, "visit.m4a")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stages[StageTranslate] != StatusDegraded {
		t.Errorf("translate status = %q, want degraded", res.Stages[StageTranslate])
	}
	// Extraction still ran on the untranslated transcript.
	if res.Stages[StageExtract] != StatusDone {
		t.Errorf("extract status = %q, want done", res.Stages[StageExtract])
	}
}

func TestRunClinicalRecordMetadata(t *testing.T) {
	exec, _ := newTestExecutor(t, fullWorkers(&llmmock.Provider{}))

	res, err := exec.Run(context.Background(), Job{ID: "job-9", LocalPath: audioFixture(t, "consult-42.m4a")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, readErr := os.ReadFile(res.Artifacts[ArtifactClinical])
	if readErr != nil {
		t.Fatalf("read clinical artifact: %v", readErr)
	}
	rec := decodeClinical(t, data)
	if rec.Metadata.SourceFile != "consult-42.m4a" {
		t.Errorf("source_file = %q", rec.Metadata.SourceFile)
	}
	if rec.Metadata.PipelineVersion != types.PipelineVersion {
		t.Errorf("pipeline_version = %q", rec.Metadata.PipelineVersion)
	}
}

func TestRunPassesLanguageHintToTranscriber(t *testing.T) {
	asrProv := &asrmock.Provider{Transcription: consultTranscription()}
	workers := fullWorkers(&llmmock.Provider{})
	workers.SetTranscriber(asrProv)
	exec, _ := newTestExecutor(t, workers)

	_, err := exec.Run(context.Background(), Job{
		ID:        "job-10",
		LocalPath: audioFixture(t, "visit.m4a"),
		Language:  "ms",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(asrProv.Calls) != 1 {
		t.Fatalf("transcriber saw %d calls, want 1", len(asrProv.Calls))
	}
	if got := asrProv.Calls[0].Req.Language; got != "ms" {
		t.Errorf("request language = %q, want ms", got)
	}

	// Without a hint the request stays empty so the transcriber's
	// configured default (auto-detect unless overridden) applies.
	asrProv.Reset()
	_, err = exec.Run(context.Background(), Job{
		ID:        "job-11",
		LocalPath: audioFixture(t, "visit.m4a"),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := asrProv.Calls[0].Req.Language; got != "" {
		t.Errorf("request language = %q, want empty without a hint", got)
	}
}
