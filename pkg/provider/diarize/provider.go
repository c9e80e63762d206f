// Package diarize defines the Provider interface for speaker diarization
// backends.
//
// Diarization answers "who spoke when": given an audio file it returns a
// list of time spans, each attributed to an anonymous speaker label such
// as "SPEAKER_00". Diarization is best-effort in the consultation
// pipeline; when no backend is configured the aligner falls back to a
// single default speaker.
package diarize

import (
	"context"
	"errors"

	"github.com/clinivox/clinivox/pkg/types"
)

// ErrTokenMissing is returned by constructors when the backend requires an
// authentication token (e.g. a Hugging Face access token for the pyannote
// models) and none is configured. Callers treat this as "diarization
// unavailable" rather than a fatal error.
var ErrTokenMissing = errors.New("diarize: authentication token not configured")

// Request describes one diarization run.
type Request struct {
	// WAVPath is the local path of a mono 16 kHz signed 16-bit WAV file.
	WAVPath string

	// MinSpeakers and MaxSpeakers bound the speaker count the backend
	// should consider. Zero values leave the backend's defaults in place.
	// A consultation typically involves a clinician, a patient, and at
	// most a couple of companions.
	MinSpeakers int
	MaxSpeakers int
}

// Provider is the abstraction over any diarization backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Diarize segments the audio by speaker. Spans are returned sorted by
	// start time; they may overlap where speakers talk over each other.
	// An empty result with a nil error is valid for silent audio.
	Diarize(ctx context.Context, req Request) ([]types.SpeakerSpan, error)
}
