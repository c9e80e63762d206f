package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/clinivox/clinivox/pkg/types"
)

// ErrUnrecognizedShape is returned by ParseLean when none of the shape
// recognizers accept the input.
var ErrUnrecognizedShape = errors.New("transcript: unrecognized transcript shape")

// ParseLean ingests a transcript document of unknown provenance and
// returns it as a lean transcript. Upstream tools emit several shapes; a
// fixed priority list of recognizers handles them:
//
//  1. an object with a "turns" array (native lean transcript)
//  2. an object with a "segments" array (raw ASR output)
//  3. an object carrying one of the known text fields ("text",
//     "translated_text", "transcript", "content")
//  4. a bare JSON string, or a non-JSON document treated as plain text
//
// The first recognizer that matches wins.
func ParseLean(data []byte) (*types.LeanTranscript, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty document", ErrUnrecognizedShape)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err == nil {
		if raw, ok := obj["turns"]; ok {
			return leanFromTurns(data, raw)
		}
		if raw, ok := obj["segments"]; ok {
			return leanFromSegments(obj, raw)
		}
		for _, field := range []string{"text", "translated_text", "transcript", "content"} {
			if raw, ok := obj[field]; ok {
				var text string
				if err := json.Unmarshal(raw, &text); err == nil && strings.TrimSpace(text) != "" {
					return leanFromText(text), nil
				}
			}
		}
		return nil, ErrUnrecognizedShape
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		if strings.TrimSpace(str) == "" {
			return nil, fmt.Errorf("%w: empty string document", ErrUnrecognizedShape)
		}
		return leanFromText(str), nil
	}

	// Not JSON at all: accept plain text documents.
	return leanFromText(trimmed), nil
}

// leanFromTurns decodes a native lean transcript and repairs missing
// numbering and durations.
func leanFromTurns(data []byte, turnsRaw json.RawMessage) (*types.LeanTranscript, error) {
	var lean types.LeanTranscript
	if err := json.Unmarshal(data, &lean); err != nil {
		return nil, fmt.Errorf("transcript: parse turns document: %w", err)
	}
	if len(lean.Turns) == 0 {
		var probe []json.RawMessage
		if err := json.Unmarshal(turnsRaw, &probe); err != nil || len(probe) > 0 {
			return nil, fmt.Errorf("%w: malformed turns array", ErrUnrecognizedShape)
		}
	}
	for i := range lean.Turns {
		t := &lean.Turns[i]
		if t.ID == 0 {
			t.ID = i + 1
		}
		if t.Duration == 0 && t.End > t.Start {
			t.Duration = t.End - t.Start
		}
		if t.Speaker == "" {
			t.Speaker = types.DefaultSpeaker
		}
	}
	if len(lean.Languages) == 0 {
		lean.Languages = []string{"en"}
	}
	return &lean, nil
}

// leanFromSegments treats each raw ASR segment as one turn, preserving
// order and any speaker labels.
func leanFromSegments(obj map[string]json.RawMessage, segmentsRaw json.RawMessage) (*types.LeanTranscript, error) {
	var segments []types.Segment
	if err := json.Unmarshal(segmentsRaw, &segments); err != nil {
		return nil, fmt.Errorf("transcript: parse segments array: %w", err)
	}

	language := "en"
	if raw, ok := obj["language"]; ok {
		var l string
		if err := json.Unmarshal(raw, &l); err == nil && l != "" {
			language = l
		}
	}

	lean := &types.LeanTranscript{Languages: normalizeLanguages([]string{language})}
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		speaker := seg.Speaker
		if speaker == "" {
			speaker = types.DefaultSpeaker
		}
		lean.Turns = append(lean.Turns, types.Turn{
			ID:       len(lean.Turns) + 1,
			Speaker:  speaker,
			Text:     text,
			Start:    seg.Start,
			End:      seg.End,
			Duration: seg.End - seg.Start,
		})
	}
	lean.SpeakingTime = speakingTime(lean.Turns)
	return lean, nil
}

// leanFromText wraps a free-text document as a single default-speaker
// turn.
func leanFromText(text string) *types.LeanTranscript {
	return &types.LeanTranscript{
		Languages: []string{"en"},
		Turns: []types.Turn{{
			ID:      1,
			Speaker: types.DefaultSpeaker,
			Text:    strings.TrimSpace(text),
		}},
	}
}
