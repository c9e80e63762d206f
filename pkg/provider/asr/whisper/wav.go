package whisper

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/clinivox/clinivox/pkg/types"
)

// errBadWAV is wrapped by decode failures so callers can distinguish a
// malformed input file from an inference error.
var errBadWAV = errors.New("whisper: not a 16-bit PCM WAV file")

// decodeWAVFile reads a mono 16-bit signed little-endian PCM WAV file and
// converts its samples to the float32 range [-1, 1) that whisper.cpp
// consumes. Multi-channel input is downmixed by averaging.
func decodeWAVFile(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("whisper: read %q: %w", path, err)
	}
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: %q", errBadWAV, path)
	}

	// Walk the RIFF chunks to find "fmt " and "data"; tools like ffmpeg
	// may emit LIST or other chunks in between.
	var (
		channels int
		bits     int
		pcm      []byte
	)
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("%w: truncated fmt chunk", errBadWAV)
			}
			format := int(binary.LittleEndian.Uint16(data[body : body+2]))
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			if format != 1 {
				return nil, fmt.Errorf("%w: audio format %d", errBadWAV, format)
			}
		case "data":
			pcm = data[body : body+size]
		}
		// Chunks are word-aligned.
		off = body + size + size%2
	}

	if channels <= 0 || pcm == nil {
		return nil, fmt.Errorf("%w: missing fmt or data chunk", errBadWAV)
	}
	if bits != bitsPerSample {
		return nil, fmt.Errorf("%w: %d bits per sample", errBadWAV, bits)
	}

	frames := len(pcm) / (2 * channels)
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			idx := (i*channels + c) * 2
			sum += float64(int16(binary.LittleEndian.Uint16(pcm[idx : idx+2])))
		}
		samples[i] = float32(sum / float64(channels) / 32768.0)
	}
	return samples, nil
}

// normalizeSegments sorts segments by start time and clamps any overlap so
// the stream satisfies the ordering contract of [asr.Provider].
func normalizeSegments(segments []types.Segment) []types.Segment {
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})
	for i := 1; i < len(segments); i++ {
		if segments[i].Start < segments[i-1].End {
			segments[i].Start = segments[i-1].End
			if segments[i].End < segments[i].Start {
				segments[i].End = segments[i].Start
			}
		}
	}
	return segments
}
