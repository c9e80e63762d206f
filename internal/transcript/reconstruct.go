// Package transcript turns raw ASR segment streams into clean
// conversational turns.
//
// Reconstruction runs in four passes: hallucination filtering, speaker
// smoothing, turn assembly, and minimum-duration pruning. The thresholds
// driving the passes are policy, carried in a [Thresholds] value so a
// deployment can tune them without code changes; the defaults are the
// contract.
package transcript

import (
	"sort"
	"strings"

	"github.com/clinivox/clinivox/pkg/types"
)

// Thresholds is the tunable policy block for turn reconstruction.
type Thresholds struct {
	// MinSegmentChars drops segments shorter than this many characters.
	MinSegmentChars int `yaml:"min_segment_chars"`

	// MinDistinctChars and DistinctCharsLen drop segments with fewer than
	// MinDistinctChars distinct characters once they are longer than
	// DistinctCharsLen ("tototototo").
	MinDistinctChars int `yaml:"min_distinct_chars"`
	DistinctCharsLen int `yaml:"distinct_chars_len"`

	// DominantWordRatio drops segments where one word takes more than
	// this share of the word count (hard repetition).
	DominantWordRatio float64 `yaml:"dominant_word_ratio"`

	// RepeatWordRatio and UniqueWordRatio drive the softer internal
	// repetition check.
	RepeatWordRatio float64 `yaml:"repeat_word_ratio"`
	UniqueWordRatio float64 `yaml:"unique_word_ratio"`

	// MinLogProb drops segments whose average token log-probability is
	// strictly below this floor.
	MinLogProb float64 `yaml:"min_log_prob"`

	// SpeakerLookBack is how many preceding segments speaker smoothing
	// consults when a segment has no speaker vote of its own.
	SpeakerLookBack int `yaml:"speaker_look_back"`

	// TurnGap splits a turn when the silence before a same-speaker
	// segment is strictly greater than this many seconds.
	TurnGap float64 `yaml:"turn_gap"`

	// MinTurnDuration drops assembled turns strictly shorter than this
	// many seconds.
	MinTurnDuration float64 `yaml:"min_turn_duration"`
}

// DefaultThresholds returns the contractual policy values.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinSegmentChars:   3,
		MinDistinctChars:  3,
		DistinctCharsLen:  10,
		DominantWordRatio: 0.5,
		RepeatWordRatio:   0.4,
		UniqueWordRatio:   0.3,
		MinLogProb:        -1.5,
		SpeakerLookBack:   3,
		TurnGap:           2.0,
		MinTurnDuration:   1.0,
	}
}

// Reconstructor assembles lean transcripts from enriched segments. It is
// stateless between calls and safe for concurrent use.
type Reconstructor struct {
	th Thresholds
}

// NewReconstructor creates a Reconstructor with the given thresholds.
// Zero-valued fields are replaced by the defaults so a partially filled
// config block cannot disable a filter by accident.
func NewReconstructor(th Thresholds) *Reconstructor {
	def := DefaultThresholds()
	if th.MinSegmentChars == 0 {
		th.MinSegmentChars = def.MinSegmentChars
	}
	if th.MinDistinctChars == 0 {
		th.MinDistinctChars = def.MinDistinctChars
	}
	if th.DistinctCharsLen == 0 {
		th.DistinctCharsLen = def.DistinctCharsLen
	}
	if th.DominantWordRatio == 0 {
		th.DominantWordRatio = def.DominantWordRatio
	}
	if th.RepeatWordRatio == 0 {
		th.RepeatWordRatio = def.RepeatWordRatio
	}
	if th.UniqueWordRatio == 0 {
		th.UniqueWordRatio = def.UniqueWordRatio
	}
	if th.MinLogProb == 0 {
		th.MinLogProb = def.MinLogProb
	}
	if th.SpeakerLookBack == 0 {
		th.SpeakerLookBack = def.SpeakerLookBack
	}
	if th.TurnGap == 0 {
		th.TurnGap = def.TurnGap
	}
	if th.MinTurnDuration == 0 {
		th.MinTurnDuration = def.MinTurnDuration
	}
	return &Reconstructor{th: th}
}

// Reconstruct builds a lean transcript from a transcription whose
// segments have (optionally) been speaker-aligned. The result is
// deterministic for a given input.
func (r *Reconstructor) Reconstruct(t *types.Transcription) *types.LeanTranscript {
	kept := r.filterSegments(t.Segments)
	r.smoothSpeakers(kept)
	turns := r.assembleTurns(kept)

	lean := &types.LeanTranscript{
		Languages:    normalizeLanguages([]string{t.Language}),
		Turns:        turns,
		SpeakingTime: speakingTime(turns),
	}
	return lean
}

// filterSegments is pass 1: drop hallucinated and duplicate segments.
func (r *Reconstructor) filterSegments(segments []types.Segment) []types.Segment {
	kept := make([]types.Segment, 0, len(segments))
	seen := make(map[string]struct{}, len(segments))
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if r.isHallucination(text, seg.AvgLogProb) {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		seg.Text = text
		kept = append(kept, seg)
	}
	return kept
}

// smoothSpeakers is pass 2: per-segment majority vote over word speakers,
// then a bounded look-back for segments without a vote, then the default
// speaker.
func (r *Reconstructor) smoothSpeakers(segments []types.Segment) {
	for i := range segments {
		seg := &segments[i]
		if voted := majoritySpeaker(seg.Words); voted != "" {
			seg.Speaker = voted
			continue
		}
		if seg.Speaker != "" {
			continue
		}
		for back := 1; back <= r.th.SpeakerLookBack && i-back >= 0; back++ {
			if prev := segments[i-back].Speaker; prev != "" {
				seg.Speaker = prev
				break
			}
		}
		if seg.Speaker == "" {
			seg.Speaker = types.DefaultSpeaker
		}
	}
}

// assembleTurns is passes 3 and 4: group consecutive same-speaker
// segments into turns, split on long gaps, drop sub-minimum turns, and
// renumber.
func (r *Reconstructor) assembleTurns(segments []types.Segment) []types.Turn {
	var turns []types.Turn
	var cur *types.Turn

	for _, seg := range segments {
		gap := 0.0
		if cur != nil {
			gap = seg.Start - cur.End
		}
		if cur == nil || seg.Speaker != cur.Speaker || gap > r.th.TurnGap {
			if cur != nil {
				turns = append(turns, *cur)
			}
			cur = &types.Turn{
				Speaker: seg.Speaker,
				Text:    seg.Text,
				Start:   seg.Start,
				End:     seg.End,
			}
			continue
		}
		cur.Text = strings.TrimSpace(cur.Text + " " + seg.Text)
		if seg.End > cur.End {
			cur.End = seg.End
		}
	}
	if cur != nil {
		turns = append(turns, *cur)
	}

	final := turns[:0]
	id := 0
	for _, t := range turns {
		if t.End-t.Start < r.th.MinTurnDuration {
			continue
		}
		id++
		t.ID = id
		t.Duration = t.End - t.Start
		final = append(final, t)
	}
	if len(final) == 0 {
		return nil
	}
	return final
}

// majoritySpeaker returns the most common word speaker, or "" when no
// word carries one. Ties resolve to the speaker that reached the winning
// count first, keeping the result stable.
func majoritySpeaker(words []types.Word) string {
	counts := make(map[string]int, 4)
	best := ""
	bestCount := 0
	for _, w := range words {
		if w.Speaker == "" {
			continue
		}
		counts[w.Speaker]++
		if counts[w.Speaker] > bestCount {
			best = w.Speaker
			bestCount = counts[w.Speaker]
		}
	}
	return best
}

// speakingTime sums turn durations per speaker.
func speakingTime(turns []types.Turn) map[string]float64 {
	if len(turns) == 0 {
		return nil
	}
	total := make(map[string]float64, 4)
	for _, t := range turns {
		total[t.Speaker] += t.Duration
	}
	return total
}

// normalizeLanguages lowercases, strips region subtags, deduplicates, and
// sorts language codes. An empty input defaults to English.
func normalizeLanguages(codes []string) []string {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if base, _, found := strings.Cut(c, "-"); found {
			c = base
		}
		set[c] = struct{}{}
	}
	if len(set) == 0 {
		return []string{"en"}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
