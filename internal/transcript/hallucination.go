package transcript

import (
	"strings"
	"unicode"
)

// blockedPhrases are known ASR hallucinations: phrases the model emits
// over silence or music that never occur in real consultation speech.
// The list is policy and safe to extend.
var blockedPhrases = []string{
	"thank you for watching",
	"thanks for watching",
	"please subscribe",
	"subscribe to my channel",
	"like and subscribe",
	"see you in the next video",
	"transcription by",
	"translated by",
	"subtitles by",
	"amara.org",
	"copyright ©",
	"all rights reserved",
}

// isHallucination reports whether a segment's text matches any of the
// hallucination heuristics. prob is the segment's average token
// log-probability; exactly minLogProb is kept (the comparison is strict).
func (r *Reconstructor) isHallucination(text string, prob float64) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return true
	}

	runes := []rune(text)
	if len(runes) < r.th.MinSegmentChars {
		return true
	}

	if distinctChars(runes) < r.th.MinDistinctChars && len(runes) > r.th.DistinctCharsLen {
		return true
	}

	lower := strings.ToLower(text)
	for _, phrase := range blockedPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}

	words := strings.Fields(lower)
	if dominantWordRatio(words) > r.th.DominantWordRatio {
		return true
	}

	if prob < r.th.MinLogProb {
		return true
	}

	return r.isRepetitive(words)
}

// isRepetitive applies the internal-repetition heuristics: a single word
// dominating the segment, low vocabulary diversity, or a short phrase
// repeated back to back.
func (r *Reconstructor) isRepetitive(words []string) bool {
	if len(words) == 0 {
		return false
	}

	if dominantWordRatio(words) > r.th.RepeatWordRatio {
		return true
	}

	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	if float64(len(unique)) < r.th.UniqueWordRatio*float64(len(words)) {
		return true
	}

	return hasConsecutivePhraseRepeat(words)
}

// hasConsecutivePhraseRepeat reports whether any phrase of 2 to 5 words
// occurs twice in a row ("how are you how are you").
func hasConsecutivePhraseRepeat(words []string) bool {
	for size := 2; size <= 5; size++ {
		for i := 0; i+2*size <= len(words); i++ {
			match := true
			for j := 0; j < size; j++ {
				if words[i+j] != words[i+size+j] {
					match = false
					break
				}
			}
			if match {
				return true
			}
		}
	}
	return false
}

// dominantWordRatio returns the share of the word count taken by the most
// frequent word. Single-word segments ("Yes.") score 0; the repetition
// heuristics only apply to multi-word text.
func dominantWordRatio(words []string) float64 {
	if len(words) <= 1 {
		return 0
	}
	counts := make(map[string]int, len(words))
	most := 0
	for _, w := range words {
		counts[w]++
		if counts[w] > most {
			most = counts[w]
		}
	}
	return float64(most) / float64(len(words))
}

// distinctChars counts distinct non-space characters.
func distinctChars(runes []rune) int {
	seen := make(map[rune]struct{}, len(runes))
	for _, c := range runes {
		if unicode.IsSpace(c) {
			continue
		}
		seen[c] = struct{}{}
	}
	return len(seen)
}
