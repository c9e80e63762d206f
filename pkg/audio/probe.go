package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// Info describes the first audio stream of a media file as reported by
// ffprobe.
type Info struct {
	// SampleRate in Hz.
	SampleRate int

	// Channels is the channel count (1 = mono).
	Channels int

	// Duration in seconds.
	Duration float64

	// Codec is the ffprobe codec name (e.g. "pcm_s16le", "aac").
	Codec string

	// BitRate in bits per second. Zero when ffprobe does not report one.
	BitRate int
}

// probeOutput mirrors the subset of `ffprobe -print_format json` output we
// consume. All numeric fields arrive as strings except the channel count.
type probeOutput struct {
	Streams []struct {
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
		Duration   string `json:"duration"`
		CodecName  string `json:"codec_name"`
		BitRate    string `json:"bit_rate"`
	} `json:"streams"`
}

// Probe inspects path with ffprobe and returns the properties of its first
// audio stream. Returns [ErrNoAudioStream] when the file has none.
func (n *Normalizer) Probe(ctx context.Context, path string) (Info, error) {
	if n.ffprobePath == "" {
		return Info{}, fmt.Errorf("%w: ffprobe unavailable", ErrConverterMissing)
	}

	cmd := exec.CommandContext(ctx, n.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "a:0",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return Info{}, fmt.Errorf("audio: probe %q: %w", path, err)
	}

	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return Info{}, fmt.Errorf("audio: parse ffprobe output for %q: %w", path, err)
	}
	if len(parsed.Streams) == 0 {
		return Info{}, fmt.Errorf("%w: %q", ErrNoAudioStream, path)
	}

	s := parsed.Streams[0]
	info := Info{
		Channels: s.Channels,
		Codec:    s.CodecName,
	}
	if v, err := strconv.Atoi(s.SampleRate); err == nil {
		info.SampleRate = v
	}
	if v, err := strconv.ParseFloat(s.Duration, 64); err == nil {
		info.Duration = v
	}
	if v, err := strconv.Atoi(s.BitRate); err == nil {
		info.BitRate = v
	}
	return info, nil
}
