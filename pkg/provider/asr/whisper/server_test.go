package whisper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/clinivox/clinivox/pkg/provider/asr"
)

func TestServerProviderTranscribe(t *testing.T) {
	var gotLanguage, gotFormat string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		gotLanguage = r.FormValue("language")
		gotFormat = r.FormValue("response_format")
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file field: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"language": "ms",
			"segments": [
				{"start": 3.0, "end": 5.0, "text": " kedua", "avg_logprob": -0.4},
				{"start": 0.0, "end": 2.5, "text": " pertama ", "avg_logprob": -0.2,
				 "words": [{"word": " pertama", "start": 0.1, "end": 2.4}]},
				{"start": 6.0, "end": 7.0, "text": "   ", "avg_logprob": -0.1}
			]
		}`))
	}))
	defer srv.Close()

	wavPath := filepath.Join(t.TempDir(), "audio.wav")
	if err := os.WriteFile(wavPath, []byte("RIFFfake"), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := NewServer(srv.URL)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	got, err := p.Transcribe(context.Background(), asr.Request{WAVPath: wavPath})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if gotLanguage != asr.LanguageAuto {
		t.Errorf("language field = %q, want %q", gotLanguage, asr.LanguageAuto)
	}
	if gotFormat != "verbose_json" {
		t.Errorf("response_format field = %q, want verbose_json", gotFormat)
	}
	if got.Language != "ms" {
		t.Errorf("Language = %q, want ms", got.Language)
	}
	if len(got.Segments) != 2 {
		t.Fatalf("got %d segments, want 2 (blank segment dropped)", len(got.Segments))
	}
	if got.Segments[0].Text != "pertama" || got.Segments[1].Text != "kedua" {
		t.Errorf("segments not sorted/trimmed: %+v", got.Segments)
	}
	if len(got.Segments[0].Words) != 1 || !got.Segments[0].Words[0].HasTiming {
		t.Errorf("word timings not carried over: %+v", got.Segments[0].Words)
	}
	if got.Segments[0].AvgLogProb != -0.2 {
		t.Errorf("AvgLogProb = %v, want -0.2", got.Segments[0].AvgLogProb)
	}
}

func TestServerProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	wavPath := filepath.Join(t.TempDir(), "audio.wav")
	if err := os.WriteFile(wavPath, []byte("RIFFfake"), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := NewServer(srv.URL)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), asr.Request{WAVPath: wavPath}); err == nil {
		t.Fatal("expected error on HTTP 500")
	}
}

func TestNewServerRequiresURL(t *testing.T) {
	if _, err := NewServer(""); err == nil {
		t.Fatal("expected error for empty server URL")
	}
}
