// Package types holds the shared data records exchanged between pipeline
// stages: raw transcription segments, speaker spans, reconstructed turns,
// and the structured clinical record. All time fields are expressed in
// seconds from the start of the audio, matching the persisted artifact
// format.
package types

// Word is a single recognised word with optional timing and speaker
// attribution. Timing may be absent when the ASR backend could not align
// the word; consumers fall back to the enclosing segment's timing.
type Word struct {
	// Text is the word as recognised, including leading/trailing punctuation.
	Text string `json:"word"`

	// Start and End bound the word in seconds. Both are zero when the
	// aligner could not place the word; use HasTiming to distinguish a word
	// genuinely starting at 0.0 from an unaligned one.
	Start float64 `json:"start,omitempty"`
	End   float64 `json:"end,omitempty"`

	// HasTiming reports whether Start/End carry real alignment data.
	HasTiming bool `json:"-"`

	// Speaker is the diarization label (e.g. "SPEAKER_00"). Empty when no
	// speaker span overlapped this word.
	Speaker string `json:"speaker,omitempty"`
}

// Segment is one contiguous stretch of recognised speech.
// Segments from a single transcription are sorted by Start and
// non-overlapping.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`

	// AvgLogProb is the mean token log-probability reported by the ASR
	// model. Values below the configured confidence floor mark the segment
	// as a likely hallucination.
	AvgLogProb float64 `json:"avg_logprob"`

	// Speaker is the segment-level speaker label derived by majority vote
	// over word speakers. Empty until speaker smoothing has run.
	Speaker string `json:"speaker,omitempty"`
}

// SpeakerSpan is a diarizer-produced interval attributed to one speaker.
// Spans may overlap; the aligner resolves overlaps by maximum-overlap
// assignment.
type SpeakerSpan struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Transcription is the full output of the transcriber worker for one audio
// file: the ordered segment stream plus the language the model detected
// (or was told).
type Transcription struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

// Turn is a maximal contiguous stretch of speech by one speaker after turn
// reconstruction. ID values are 1-based and gap-free within a transcript.
type Turn struct {
	ID       int     `json:"turn_id"`
	Speaker  string  `json:"speaker"`
	Text     string  `json:"text"`
	Start    float64 `json:"start_time"`
	End      float64 `json:"end_time"`
	Duration float64 `json:"duration"`
}

// LeanTranscript is the canonical simplified transcript: the hand-off
// format between turn reconstruction, translation, and clinical
// extraction.
type LeanTranscript struct {
	// Languages lists the detected language codes, sorted and unique.
	// After translation this is always ["en"].
	Languages []string `json:"languages_detected"`

	Turns []Turn `json:"turns"`

	// SpeakingTime maps each speaker label to its total speaking time in
	// seconds, computed from the final turns.
	SpeakingTime map[string]float64 `json:"speaking_time,omitempty"`
}

// IsEnglish reports whether the transcript is already entirely English,
// in which case translation is a no-op.
func (lt *LeanTranscript) IsEnglish() bool {
	return len(lt.Languages) == 1 && lt.Languages[0] == "en"
}

// ClinicalRecord is the structured extraction from a consultation
// transcript. String fields are empty when not found; list fields are
// deduplicated and lowercase where they name drugs or diseases.
type ClinicalRecord struct {
	Summary          string   `json:"summary"`
	ChiefComplaint   string   `json:"chief_complaint"`
	SymptomsPresent  []string `json:"symptoms_present"`
	SymptomsNegated  []string `json:"symptoms_negated"`
	OnsetOrDuration  string   `json:"onset_or_duration"`
	AllergySubstance []string `json:"allergy_substance"`
	MedsCurrent      []string `json:"meds_current"`
	ConditionsPast   []string `json:"conditions_past"`
	PrimaryDiagnosis string   `json:"primary_diagnosis"`
	RxDrug           string   `json:"rx_drug"`
	RxDose           string   `json:"rx_dose"`
	FollowUp         string   `json:"follow_up"`
	RedFlags         []string `json:"red_flags"`

	Metadata RecordMetadata `json:"_metadata"`
}

// RecordMetadata describes how a ClinicalRecord was produced.
type RecordMetadata struct {
	SourceFile       string `json:"source_file"`
	ModelUsed        string `json:"model_used"`
	ExtractionMethod string `json:"extraction_method"`
	PipelineVersion  string `json:"pipeline_version"`
}

// PipelineVersion is stamped into every ClinicalRecord's metadata.
const PipelineVersion = "1.0"

// DefaultSpeaker is the label assigned when diarization is unavailable or
// produced no overlapping span for a segment.
const DefaultSpeaker = "SPEAKER_00"
