// Package translate renders non-English consultation transcripts into
// English through an LLM translation backend.
//
// The primary path batches every turn into one request using positional
// [TURN_N] markers and reparses the response by the same markers. When
// the reparse comes back short the translator drops to a per-turn
// fallback, throttled to respect the backend's request quota. A turn
// whose translation fails in the fallback keeps its original text; the
// stage degrades, it does not fail the job.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/clinivox/clinivox/internal/observe"
	"github.com/clinivox/clinivox/pkg/provider/llm"
	"github.com/clinivox/clinivox/pkg/types"
)

// EnvAPIKey names the environment variable holding the translation
// backend credential. Without it the translator is disabled and
// transcripts pass through untranslated.
const EnvAPIKey = "SEALION_API_KEY"

// DefaultModel is the SEA-LION model used for translation. SEA-LION is
// trained on the Southeast Asian languages this deployment encounters.
const DefaultModel = "aisingapore/Gemma-SEA-LION-v4-27B-IT"

const (
	// temperature keeps translations close to literal.
	temperature = 0.1

	// maxTokensSingle and maxTokensBulk cap response lengths for the
	// per-turn and batched paths.
	maxTokensSingle = 1000
	maxTokensBulk   = 4000

	// defaultRequestInterval spaces fallback requests to stay inside a
	// 10-requests-per-minute quota.
	defaultRequestInterval = 6500 * time.Millisecond
)

const systemPrompt = "You are a professional medical translator. Translate the given " +
	"clinical conversation text to English. Preserve medical terms, drug names, and " +
	"dosages exactly. Output only the translation, with no commentary."

// turnMarker matches the positional markers used to batch and reparse
// turns.
var turnMarker = regexp.MustCompile(`\[TURN_(\d+)\]`)

// Translator translates lean transcripts turn by turn. It is safe for
// concurrent use; the request throttle is per-call, matching the
// one-job-at-a-time dispatch model.
type Translator struct {
	provider llm.Provider
	interval time.Duration
	metrics  *observe.Metrics
}

// Option is a functional option for configuring a Translator.
type Option func(*Translator)

// WithRequestInterval overrides the minimum delay between fallback
// requests, mainly for tests.
func WithRequestInterval(d time.Duration) Option {
	return func(t *Translator) { t.interval = d }
}

// WithMetrics overrides the metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(t *Translator) { t.metrics = m }
}

// New creates a Translator on top of an LLM provider.
func New(provider llm.Provider, opts ...Option) *Translator {
	t := &Translator{
		provider: provider,
		interval: defaultRequestInterval,
		metrics:  observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Translate returns an English rendition of the transcript. Turn ids,
// speakers, and timings are preserved; languages_detected becomes ["en"].
// Already-English transcripts are returned as-is. The only error returned
// is context cancellation; individual translation failures keep the
// original text in place.
func (t *Translator) Translate(ctx context.Context, lean *types.LeanTranscript) (*types.LeanTranscript, error) {
	if lean.IsEnglish() {
		return lean, nil
	}

	out := &types.LeanTranscript{
		Languages:    []string{"en"},
		Turns:        make([]types.Turn, len(lean.Turns)),
		SpeakingTime: lean.SpeakingTime,
	}
	copy(out.Turns, lean.Turns)

	translated, err := t.translateBulk(ctx, lean.Turns)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("bulk translation failed, falling back to per-turn", "error", err)
		t.metrics.RecordTranslatorFallback(ctx)
		translated, err = t.translatePerTurn(ctx, lean.Turns)
		if err != nil {
			return nil, err
		}
	}

	for i := range out.Turns {
		if text, ok := translated[out.Turns[i].ID]; ok && strings.TrimSpace(text) != "" {
			out.Turns[i].Text = strings.TrimSpace(text)
		}
	}
	return out, nil
}

// translateBulk sends all turns in a single request and reparses the
// response by its [TURN_N] markers. An incomplete reparse is an error so
// the caller can fall back.
func (t *Translator) translateBulk(ctx context.Context, turns []types.Turn) (map[int]string, error) {
	var sb strings.Builder
	expected := 0
	for _, turn := range turns {
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		fmt.Fprintf(&sb, "[TURN_%d] %s\n", turn.ID, turn.Text)
		expected++
	}
	if expected == 0 {
		return map[int]string{}, nil
	}

	resp, err := t.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt + " Keep every [TURN_N] marker in place.",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: sb.String()},
		},
		Temperature: temperature,
		MaxTokens:   maxTokensBulk,
	})
	if err != nil {
		return nil, fmt.Errorf("translate: bulk request: %w", err)
	}

	parsed := parseBulk(resp.Content)
	if len(parsed) < expected {
		return nil, fmt.Errorf("translate: bulk reparse yielded %d of %d turns", len(parsed), expected)
	}
	return parsed, nil
}

// parseBulk splits a marker-formatted response into per-turn texts. Each
// turn's text runs from its marker to the next marker (or end of input).
func parseBulk(response string) map[int]string {
	matches := turnMarker.FindAllStringSubmatchIndex(response, -1)
	out := make(map[int]string, len(matches))
	for i, m := range matches {
		id, err := strconv.Atoi(response[m[2]:m[3]])
		if err != nil {
			continue
		}
		start := m[1]
		end := len(response)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		text := strings.TrimSpace(response[start:end])
		if text != "" {
			out[id] = text
		}
	}
	return out
}

// translatePerTurn translates each turn in its own request, spacing
// requests to stay inside the backend quota. Failed turns are skipped so
// their original text survives.
func (t *Translator) translatePerTurn(ctx context.Context, turns []types.Turn) (map[int]string, error) {
	out := make(map[int]string, len(turns))
	first := true
	for _, turn := range turns {
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		if !first {
			if err := sleepCtx(ctx, t.interval); err != nil {
				return nil, err
			}
		}
		first = false

		resp, err := t.provider.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: systemPrompt,
			Messages: []llm.Message{
				{Role: llm.RoleUser, Content: turn.Text},
			},
			Temperature: temperature,
			MaxTokens:   maxTokensSingle,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("per-turn translation failed, keeping original text",
				"turn_id", turn.ID, "error", err)
			continue
		}
		out[turn.ID] = strings.TrimSpace(resp.Content)
	}
	return out, nil
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
