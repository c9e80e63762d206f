package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// targetSampleRate and targetChannels define the canonical transcription
// format: mono 16 kHz signed 16-bit WAV.
const (
	targetSampleRate = 16000
	targetChannels   = 1
	targetCodec      = "pcm_s16le"
)

// Normalizer converts audio files into the canonical transcription format.
// Conversions are written into a cache directory and are idempotent by
// input basename: a second Normalize of the same file reuses the previous
// output.
type Normalizer struct {
	ffmpegPath  string
	ffprobePath string
	cacheDir    string
}

// NewNormalizer resolves the ffmpeg/ffprobe binaries and prepares the cache
// directory. Returns [ErrConverterMissing] when no converter is available —
// callers at server startup should treat that as fatal.
func NewNormalizer(cacheDir string) (*Normalizer, error) {
	ffmpeg, ffprobe, err := resolveConverter()
	if err != nil {
		return nil, err
	}
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "clinivox-audio")
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("audio: create cache dir %q: %w", cacheDir, err)
	}
	return &Normalizer{
		ffmpegPath:  ffmpeg,
		ffprobePath: ffprobe,
		cacheDir:    cacheDir,
	}, nil
}

// CacheDir returns the directory normalized files are written to.
func (n *Normalizer) CacheDir() string { return n.cacheDir }

// Conformant reports whether info already satisfies the canonical format
// for a file at path (mono, 16 kHz, raw PCM WAV).
func Conformant(info Info, path string) bool {
	return info.Channels == targetChannels &&
		info.SampleRate == targetSampleRate &&
		info.Codec == targetCodec &&
		strings.EqualFold(filepath.Ext(path), ".wav")
}

// Normalize converts path into the canonical transcription format and
// returns the local path of the result. Already-conformant inputs are
// returned unchanged, by reference. The output lands in the cache
// directory as <stem>.wav; an existing output for the same stem is reused.
func (n *Normalizer) Normalize(ctx context.Context, path string) (string, error) {
	info, err := n.Probe(ctx, path)
	if err != nil {
		return "", err
	}
	if Conformant(info, path) {
		slog.Debug("audio already in canonical format", "path", path)
		return path, nil
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(n.cacheDir, stem+".wav")
	if _, statErr := os.Stat(out); statErr == nil {
		slog.Debug("reusing cached normalized audio", "path", out)
		return out, nil
	}

	slog.Info("converting audio",
		"input", path,
		"channels", info.Channels,
		"sample_rate", info.SampleRate,
		"codec", info.Codec,
	)

	cmd := exec.CommandContext(ctx, n.ffmpegPath,
		"-i", path,
		"-ac", "1",
		"-ar", "16000",
		"-sample_fmt", "s16",
		"-f", "wav",
		"-y",
		out,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		// ffmpeg leaves partial output behind on failure.
		os.Remove(out)
		return "", fmt.Errorf("audio: convert %q: %w: %s", path, err, lastLine(stderr.String()))
	}
	if _, statErr := os.Stat(out); statErr != nil {
		return "", fmt.Errorf("audio: convert %q: output %q was not created", path, out)
	}
	return out, nil
}

// lastLine extracts the final non-empty line of ffmpeg's stderr, which
// carries the actual error message.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
