// Package asr defines the Provider interface for batch speech recognition
// backends.
//
// Unlike a live captioning system, the consultation pipeline transcribes
// complete audio files: a provider receives the path of an already
// normalized WAV file and returns the full segment stream in one call.
// Implementations must produce segments sorted by start time and
// non-overlapping, each carrying an average token log-probability so that
// downstream hallucination filtering can reason about confidence.
//
// Implementations must be safe for concurrent use; the pipeline may
// transcribe several files at once.
package asr

import (
	"context"

	"github.com/clinivox/clinivox/pkg/types"
)

// LanguageAuto asks the backend to detect the spoken language instead of
// being told. It is the default hint for consultation audio, which is
// frequently code-switched.
const LanguageAuto = "auto"

// Request describes one batch transcription.
type Request struct {
	// WAVPath is the local path of a mono 16 kHz signed 16-bit WAV file.
	// Providers may reject other formats.
	WAVPath string

	// Language is the BCP-47 language hint (e.g. "en", "ms"). Empty or
	// [LanguageAuto] lets the model detect the language.
	Language string
}

// Provider is the abstraction over any batch ASR backend.
type Provider interface {
	// Transcribe runs recognition over the whole file and returns the
	// ordered segment stream plus the detected (or hinted) language.
	// The returned transcription is never nil on a nil error; it may
	// contain zero segments for silent audio.
	Transcribe(ctx context.Context, req Request) (*types.Transcription, error)
}
