// Package align attributes recognised words and segments to diarized
// speakers.
//
// The assignment is a maximum-overlap vote: each word (or segment) is
// given to the speaker whose diarization span overlaps it the most. Ties
// go to the span that starts earliest, and items overlapping no span at
// all keep an empty speaker label for downstream smoothing to fill in.
package align

import (
	"github.com/clinivox/clinivox/pkg/types"
)

// overlap returns the length of the intersection of [aStart,aEnd] and
// [bStart,bEnd], or 0 when they are disjoint.
func overlap(aStart, aEnd, bStart, bEnd float64) float64 {
	o := min(aEnd, bEnd) - max(aStart, bStart)
	if o < 0 {
		return 0
	}
	return o
}

// bestSpeaker picks the span with the largest overlap against the given
// interval. Ties resolve to the earliest-starting span. Returns "" when
// nothing overlaps.
func bestSpeaker(start, end float64, spans []types.SpeakerSpan) string {
	var (
		best      string
		bestOv    float64
		bestStart float64
	)
	for _, s := range spans {
		ov := overlap(start, end, s.Start, s.End)
		if ov <= 0 {
			continue
		}
		if ov > bestOv || (ov == bestOv && s.Start < bestStart) {
			best = s.Speaker
			bestOv = ov
			bestStart = s.Start
		}
	}
	return best
}

// AssignSpeakers labels every word and segment of the transcription with
// its maximum-overlap speaker. Words without timing inherit their
// segment's window for the vote. With no spans the transcription is
// returned untouched; the turn reconstructor then falls back to a single
// default speaker.
func AssignSpeakers(t *types.Transcription, spans []types.SpeakerSpan) {
	if t == nil || len(spans) == 0 {
		return
	}
	for i := range t.Segments {
		seg := &t.Segments[i]
		seg.Speaker = bestSpeaker(seg.Start, seg.End, spans)
		for j := range seg.Words {
			w := &seg.Words[j]
			if w.HasTiming {
				w.Speaker = bestSpeaker(w.Start, w.End, spans)
			} else {
				w.Speaker = seg.Speaker
			}
		}
	}
}
