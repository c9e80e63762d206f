// Package audio normalizes arbitrary input audio into the canonical form
// the transcriber requires: mono, 16 kHz, signed 16-bit PCM in a WAV
// container. Conversion is delegated to an external ffmpeg binary; probing
// uses the sibling ffprobe binary. Already-conformant inputs are passed
// through untouched.
package audio

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// EnvFFmpegPath overrides converter discovery with an explicit binary path.
const EnvFFmpegPath = "FFMPEG_PATH"

// ErrConverterMissing is returned when neither FFMPEG_PATH nor the system
// PATH yields a usable ffmpeg binary.
var ErrConverterMissing = errors.New("audio: ffmpeg not found (install ffmpeg or set FFMPEG_PATH)")

// ErrNoAudioStream is returned by Probe when the input file contains no
// audio stream.
var ErrNoAudioStream = errors.New("audio: no audio stream in file")

// resolveConverter finds the ffmpeg binary and its sibling ffprobe.
// Precedence: FFMPEG_PATH environment variable, then the system PATH.
func resolveConverter() (ffmpeg, ffprobe string, err error) {
	if envPath := os.Getenv(EnvFFmpegPath); envPath != "" {
		if _, statErr := os.Stat(envPath); statErr != nil {
			return "", "", fmt.Errorf("%w: %s is set to %q but the binary does not exist",
				ErrConverterMissing, EnvFFmpegPath, envPath)
		}
		return envPath, siblingProbe(envPath), nil
	}

	ffmpeg, lookErr := exec.LookPath("ffmpeg")
	if lookErr != nil {
		return "", "", ErrConverterMissing
	}

	// ffprobe usually lives next to ffmpeg; fall back to PATH lookup.
	ffprobe = siblingProbe(ffmpeg)
	if _, statErr := os.Stat(ffprobe); statErr != nil {
		if found, probeErr := exec.LookPath("ffprobe"); probeErr == nil {
			ffprobe = found
		} else {
			ffprobe = ""
		}
	}
	return ffmpeg, ffprobe, nil
}

// siblingProbe derives the expected ffprobe path from an ffmpeg path,
// preserving any .exe suffix.
func siblingProbe(ffmpegPath string) string {
	dir := filepath.Dir(ffmpegPath)
	base := filepath.Base(ffmpegPath)
	probe := strings.Replace(base, "ffmpeg", "ffprobe", 1)
	if probe == base {
		probe = "ffprobe"
	}
	return filepath.Join(dir, probe)
}
