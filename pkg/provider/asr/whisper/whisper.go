// Package whisper provides ASR providers backed by whisper.cpp.
//
// Two implementations exist:
//
//   - [NativeProvider] links whisper.cpp directly through its CGO bindings.
//     The model file is loaded once at startup and shared across all
//     transcriptions. This is the default for the consultation pipeline.
//   - [ServerProvider] talks to a running whisper-server binary over its
//     REST API (POST /inference), useful when the model should live in a
//     separate process or on another machine.
//
// Both return full-file transcriptions with per-segment average token
// log-probabilities and word-level timings where the model produces them.
package whisper

import (
	"fmt"
	"path/filepath"
)

const (
	defaultModelSize  = "small"
	defaultSampleRate = 16000

	// bitsPerSample is fixed at 16 for the signed little-endian PCM audio
	// whisper.cpp expects.
	bitsPerSample = 16
)

// modelSizes maps a size preset to the conventional ggml model filename
// distributed by the whisper.cpp project.
var modelSizes = map[string]string{
	"tiny":     "ggml-tiny.bin",
	"base":     "ggml-base.bin",
	"small":    "ggml-small.bin",
	"medium":   "ggml-medium.bin",
	"large-v2": "ggml-large-v2.bin",
	"large-v3": "ggml-large-v3.bin",
}

// ModelPathForSize resolves a size preset ("tiny", "base", "small",
// "medium", "large-v2", "large-v3") to the model file path under modelDir.
// An empty size selects the default preset.
func ModelPathForSize(modelDir, size string) (string, error) {
	if size == "" {
		size = defaultModelSize
	}
	name, ok := modelSizes[size]
	if !ok {
		return "", fmt.Errorf("whisper: unknown model size %q", size)
	}
	return filepath.Join(modelDir, name), nil
}
