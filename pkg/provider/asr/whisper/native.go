// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/clinivox/clinivox/pkg/provider/asr"
	"github.com/clinivox/clinivox/pkg/types"
)

// Compile-time assertion that NativeProvider satisfies asr.Provider.
var _ asr.Provider = (*NativeProvider)(nil)

// NativeProvider implements asr.Provider using the whisper.cpp Go bindings
// (CGO). The model is loaded once in NewNative and shared across all
// transcriptions; each Transcribe call creates its own whisper context, so
// concurrent calls do not interfere.
type NativeProvider struct {
	model    whisperlib.Model
	language string
	threads  int

	// mu serialises inference. whisper.cpp contexts are cheap but the
	// underlying model weights are not re-entrant on all builds.
	mu sync.Mutex
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the default language hint used when a request
// does not carry one. Defaults to "auto" (detect).
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeThreads sets the number of CPU threads used for inference.
// Zero leaves the bindings' default in place.
func WithNativeThreads(n int) NativeOption {
	return func(p *NativeProvider) { p.threads = n }
}

// NewNative loads the whisper.cpp model from modelPath. Loading a large
// model can take tens of seconds; callers normally do this once during
// server warm-up. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		language: asr.LanguageAuto,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe runs whisper.cpp inference over the full WAV file and returns
// the ordered segment stream. Word timings are derived from token
// timestamps; the per-segment average log-probability is the mean log of
// the token probabilities the model reported.
func (p *NativeProvider) Transcribe(ctx context.Context, req asr.Request) (*types.Transcription, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	samples, err := decodeWAVFile(req.WAVPath)
	if err != nil {
		return nil, err
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("failed to set whisper language, using auto-detect",
			"language", lang, "error", err)
		if err := wctx.SetLanguage(asr.LanguageAuto); err != nil {
			return nil, fmt.Errorf("whisper: set language: %w", err)
		}
	}
	wctx.SetTokenTimestamps(true)
	if p.threads > 0 {
		wctx.SetThreads(uint(p.threads))
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	var segments []types.Segment
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		converted := convertSegment(wctx, seg)
		if strings.TrimSpace(converted.Text) == "" {
			continue
		}
		segments = append(segments, converted)
	}

	detected := wctx.DetectedLanguage()
	if detected == "" || lang != asr.LanguageAuto {
		detected = lang
	}

	t := &types.Transcription{
		Segments: normalizeSegments(segments),
		Language: detected,
	}
	return t, nil
}

// convertSegment maps a whisper.cpp segment onto the pipeline segment
// type, grouping subword tokens into words and averaging token
// log-probabilities.
func convertSegment(wctx whisperlib.Context, seg whisperlib.Segment) types.Segment {
	out := types.Segment{
		Start: seg.Start.Seconds(),
		End:   seg.End.Seconds(),
		Text:  strings.TrimSpace(seg.Text),
	}

	var (
		logProbSum float64
		textTokens int
		current    *types.Word
	)
	for _, tok := range seg.Tokens {
		if !wctx.IsText(tok) {
			continue
		}
		textTokens++
		// Floor near-zero probabilities so a single degenerate token does
		// not drive the average to -Inf.
		p := float64(tok.P)
		if p < 1e-10 {
			p = 1e-10
		}
		logProbSum += math.Log(p)

		// A leading space marks the start of a new word; whisper emits
		// subword pieces otherwise.
		piece := tok.Text
		startsWord := strings.HasPrefix(piece, " ") || current == nil
		if startsWord {
			if current != nil {
				out.Words = append(out.Words, *current)
			}
			current = &types.Word{
				Text:      strings.TrimSpace(piece),
				Start:     tok.Start.Seconds(),
				End:       tok.End.Seconds(),
				HasTiming: true,
			}
			continue
		}
		current.Text += piece
		current.End = tok.End.Seconds()
	}
	if current != nil {
		out.Words = append(out.Words, *current)
	}

	if textTokens > 0 {
		out.AvgLogProb = logProbSum / float64(textTokens)
	}
	return out
}
